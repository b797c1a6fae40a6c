package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ppissanetzky/barcode-sub000/internal/config"
	"github.com/ppissanetzky/barcode-sub000/internal/forum"
	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
	"github.com/ppissanetzky/barcode-sub000/internal/notify"
)

// relay delivers messages published by serve processes to the forum, so
// only one process talks to the forum API.
func relay(ctx context.Context, cfg *config.Config) error {
	if cfg.NATS.URL == "" || cfg.Forum.URL == "" {
		return errors.New("relay needs NATS_URL and FORUM_URL")
	}
	metrics.Register()

	nc, err := connectNATS(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer nc.Drain()

	client := forum.NewClient(cfg.Forum.URL, cfg.Forum.APIKey, cfg.Forum.BotUserID)
	r := notify.NewRelay(client, cfg.Server.NotifyTimeout)

	sub, err := r.Subscribe(nc, cfg.NATS.Subject)
	if err != nil {
		return err
	}
	slog.Info("relay started", "subject", cfg.NATS.Subject)

	<-ctx.Done()
	slog.Info("relay stopping")
	return sub.Drain()
}
