package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppissanetzky/barcode-sub000/internal/api"
	"github.com/ppissanetzky/barcode-sub000/internal/config"
	"github.com/ppissanetzky/barcode-sub000/internal/forum"
	"github.com/ppissanetzky/barcode-sub000/internal/store"
)

// noForum rejects logins when no forum API is configured.
type noForum struct{}

func (noForum) Authenticate(context.Context, string, string) (int64, string, error) {
	return 0, "", forum.ErrBadCredentials
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	jwtSecret, err := store.GetJWTSecret(ctx, a.db)
	if err != nil {
		return fmt.Errorf("getting jwt secret: %w", err)
	}

	var authenticator api.Authenticator = noForum{}
	if a.forum != nil {
		authenticator = a.forum
	}

	handler := api.NewRouter(api.Config{
		DB:             a.db,
		JWTSecret:      jwtSecret,
		Service:        a.service,
		Settings:       a.settings,
		Forum:          authenticator,
		Admins:         cfg.Admins,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	if cfg.Jobs.Enabled {
		s, err := a.scheduler()
		if err != nil {
			return err
		}
		s.Start()
		defer s.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	slog.Info("server stopped, waiting for notifications")
	return nil
}

// runJob runs one scheduled job in the foreground.
func runJob(ctx context.Context, cfg *config.Config, name string) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.scheduler()
	if err != nil {
		return err
	}
	return s.RunNow(name)
}
