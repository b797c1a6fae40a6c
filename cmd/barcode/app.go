package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ppissanetzky/barcode-sub000/internal/ban"
	"github.com/ppissanetzky/barcode-sub000/internal/cache"
	"github.com/ppissanetzky/barcode-sub000/internal/config"
	"github.com/ppissanetzky/barcode-sub000/internal/db"
	"github.com/ppissanetzky/barcode-sub000/internal/directory"
	"github.com/ppissanetzky/barcode-sub000/internal/distance"
	"github.com/ppissanetzky/barcode-sub000/internal/equipment"
	"github.com/ppissanetzky/barcode-sub000/internal/forum"
	"github.com/ppissanetzky/barcode-sub000/internal/joblock"
	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
	"github.com/ppissanetzky/barcode-sub000/internal/notify"
	"github.com/ppissanetzky/barcode-sub000/internal/queue"
	"github.com/ppissanetzky/barcode-sub000/internal/scheduler"
	"github.com/ppissanetzky/barcode-sub000/internal/settings"
	"github.com/ppissanetzky/barcode-sub000/internal/sms"
)

// app is everything serve and run share.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	forum     *forum.Client
	settings  *settings.Settings
	messenger notify.Messenger
	notifier  *notify.Async
	service   *equipment.Service
	jobs      *scheduler.Jobs

	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases resources in reverse order of creation.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("closing", "error", err)
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	metrics.Register()

	var err error
	a.db, err = db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.onClose(a.db.Close)
	if err := db.EnsureSchema(a.db); err != nil {
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	a.settings, err = settings.Load(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	policy, err := ban.Load(cfg.BanPolicy)
	if err != nil {
		return nil, fmt.Errorf("loading ban policy: %w", err)
	}

	dir, err := a.openDirectory(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Forum.URL != "" {
		a.forum = forum.NewClient(cfg.Forum.URL, cfg.Forum.APIKey, cfg.Forum.BotUserID)
	}

	a.messenger, err = a.openMessenger()
	if err != nil {
		return nil, err
	}
	a.notifier = notify.NewAsync(a.messenger, cfg.Server.NotifyTimeout)
	a.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.notifier.Wait(ctx)
	})

	var sender sms.Sender = sms.Log{}
	if cfg.Twilio.AccountSID != "" {
		sender = sms.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	}

	projector := queue.NewProjector(a.db, dir)
	a.service = equipment.New(equipment.Deps{
		DB:        a.db,
		Directory: dir,
		Projector: projector,
		Policy:    policy,
		Settings:  a.settings,
		Notifier:  a.notifier,
		SMS:       sender,
	})

	a.jobs = &scheduler.Jobs{
		DB:        a.db,
		Projector: projector,
		Messenger: a.messenger,
		Settings:  a.settings,
	}
	if cfg.GoogleAPIKey != "" {
		a.jobs.Matrix = distance.NewGoogle(cfg.GoogleAPIKey)
	}
	ready = true
	return a, nil
}

func (a *app) openDirectory(ctx context.Context) (directory.Directory, error) {
	cfg := a.cfg
	if cfg.Directory.DSN == "" {
		return nil, errors.New("FORUM_DB_DSN is required")
	}
	xf, err := directory.OpenXenForo(cfg.Directory.DSN, cfg.Directory.HoldersGroup, cfg.Directory.AllowedGroups)
	if err != nil {
		return nil, err
	}
	a.onClose(xf.Close)

	var c cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisURL,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(r.Close)
		c = r
	default:
		c = cache.NewMemory(cfg.Cache.Size)
	}
	slog.Info("user directory ready", "cache", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	return directory.NewCached(xf, c, cfg.Cache.TTL), nil
}

// openMessenger publishes to NATS when configured, posts to the forum
// directly otherwise, and only logs without either.
func (a *app) openMessenger() (notify.Messenger, error) {
	cfg := a.cfg
	switch {
	case cfg.NATS.URL != "":
		nc, err := connectNATS(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		a.onClose(nc.Drain)
		slog.Info("forum messages go through nats", "subject", cfg.NATS.Subject)
		return notify.NewNATS(nc, cfg.NATS.Subject), nil
	case a.forum != nil:
		return a.forum, nil
	default:
		slog.Warn("no forum configured, messages are only logged")
		return notify.Log{}, nil
	}
}

func connectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("barcode"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return nc, nil
}

// scheduler builds the job scheduler, sharing a lock directory with other
// processes when one is configured.
func (a *app) scheduler() (*scheduler.Scheduler, error) {
	var lock *joblock.Lock
	if a.cfg.Jobs.LockDir != "" {
		var err error
		lock, err = joblock.New(a.cfg.Jobs.LockDir, a.cfg.Jobs.LockHoldOver)
		if err != nil {
			return nil, err
		}
	}
	s := scheduler.New(lock, a.cfg.Jobs.Timeout)
	a.jobs.Register(s, a.cfg.Jobs.DistributeEvery)
	return s, nil
}
