package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"concursobot/internal/acquire"
	"concursobot/internal/bot"
	"concursobot/internal/config"
	"concursobot/internal/dispatch"
	"concursobot/internal/scheduler"
	"concursobot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Error("load sources", "path", cfg.SourcesFile, "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	api, err := bot.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	fetcher := acquire.NewFetcher(acquire.DefaultClient())
	dispatcher := dispatch.New(bot.NewSender(api), cfg.MessagesPerMinute, log)

	sched, err := scheduler.New(store, dispatcher, scheduler.FromConfig(sources, fetcher), sources.Location(), log)
	if err != nil {
		log.Error("create scheduler", "error", err)
		os.Exit(1)
	}

	sched.SetDeliveryTimeout(cfg.DeliveryTimeout)

	b := bot.New(api, store, sched, cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "sources", len(sources.Sources), "timezone", sources.Timezone)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error {
		b.Run(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
		_ = store.Close()
		os.Exit(1)
	}

	log.Info("bot stopped")
}
