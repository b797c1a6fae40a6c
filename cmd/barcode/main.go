package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppissanetzky/barcode-sub000/internal/config"
)

const usage = `Usage: barcode [flags] [command]

Commands:
  serve             run the HTTP API and the scheduled jobs (default)
  relay             deliver queued forum messages from NATS to the forum
  run <job>         run one job now: distribution, ban-expiry, otp-cleanup,
                    session-cleanup, overdue-alerts

Flags:
  -e, -env <path>         environment file (default: .env)
  -d, -db <path>          SQLite database path (overrides DB_PATH)
  -a, -addr <host:port>   listen address (overrides LISTEN_ADDR)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit
`

func main() {
	fs := flag.NewFlagSet("barcode", flag.ContinueOnError)

	var envFile string
	fs.StringVar(&envFile, "env", ".env", "")
	fs.StringVar(&envFile, "e", ".env", "")

	var dbPath string
	fs.StringVar(&dbPath, "db", "", "")
	fs.StringVar(&dbPath, "d", "", "")

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	command := "serve"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	closeLog, err := setupLogger(logPath, command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	cfg, err := config.Load(envFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg)
	case "relay":
		err = relay(ctx, cfg)
	case "run":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "run: job name required")
			fs.Usage()
			os.Exit(1)
		}
		err = runJob(ctx, cfg, fs.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		fs.Usage()
		os.Exit(1)
	}

	if err != nil {
		slog.Error("exiting", "error", err)
		closeLog()
		os.Exit(1)
	}
}
