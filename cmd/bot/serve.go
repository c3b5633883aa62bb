package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"BetaBasket/internal/collector"
	"BetaBasket/internal/model"
	"BetaBasket/internal/notifier"
	"BetaBasket/internal/recorder"
	"BetaBasket/internal/scheduler"
	"BetaBasket/internal/session"
	"BetaBasket/internal/synthetic"

	"github.com/google/subcommands"
)

type serveCmd struct {
	mock bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the Telegram bot and scheduled recomputation" }
func (*serveCmd) Usage() string {
	return `serve [-mock]

  Runs the bot until SIGINT or SIGTERM. Each Telegram chat owns one basket.
  Without a bot token the service runs headless: the scheduler still warms
  the catalog and recomputes existing sessions.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.mock, "mock", false, "Use generated market data instead of the exchange")
}

func (c *serveCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log.Println("[INFO] BetaBasket starting...")

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("[FATAL] load config: %v", err)
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Telegram notifier
	var (
		tn   *notifier.TelegramNotifier
		sink collector.Sink = collector.LogSink{}
	)
	if cfg.Telegram.BotToken != "" {
		tn, err = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, cfg.Proxy)
		if err != nil {
			log.Printf("[FATAL] init telegram: %v", err)
			return subcommands.ExitFailure
		}
		ts := notifier.NewTelegramSink(tn)
		go ts.Run(ctx)
		sink = ts
	} else {
		log.Println("[WARN] telegram.bot_token not set, running headless")
	}

	fetcher := newFetcher(cfg, sink, c.mock)
	log.Printf("[INFO] data source: %s", fetcher.Name())
	catalog := collector.NewCatalog(fetcher, cfg.Market.CatalogInterval, cfg.Market.Betas, nil)

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	sessions := session.NewRegistry(func(publish func(model.Snapshot)) *synthetic.Engine {
		return synthetic.New(catalog, fetcher,
			synthetic.WithInterval(cfg.Market.Interval),
			synthetic.WithLookback(cfg.Lookback()),
			synthetic.WithConcurrency(cfg.Market.Concurrency),
			synthetic.WithPublisher(publish))
	}, func(id string, snap model.Snapshot) {
		if err := rec.RecordSnapshot(id, snap); err != nil {
			log.Printf("[ERROR] record snapshot for %s: %v", id, err)
		}
	})

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, catalog, sessions)
	if err := sched.RegisterAll(cfg.Schedule.CatalogCron, cfg.Schedule.RecomputeCron); err != nil {
		log.Printf("[FATAL] register cron tasks: %v", err)
		return subcommands.ExitFailure
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		n := sched.RunCatalogNow()
		log.Printf("[INFO] catalog warm-up: %d instruments", n)
	}()

	if tn != nil {
		cmds := &notifier.Commands{Catalog: catalog, Sessions: sessions, Recorder: rec}
		go tn.StartPolling(ctx, cmds.Handler())
		log.Println("[INFO] Telegram polling started")
	}

	log.Println("[INFO] BetaBasket is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] BetaBasket stopped")
	return subcommands.ExitSuccess
}
