package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tovfikur/virtual-world-sub003/config"
	"github.com/tovfikur/virtual-world-sub003/infra/journal"
	"github.com/tovfikur/virtual-world-sub003/infra/logging"
	"github.com/tovfikur/virtual-world-sub003/infra/metrics"
	"github.com/tovfikur/virtual-world-sub003/infra/outbox"
	"github.com/tovfikur/virtual-world-sub003/infra/store"
	"github.com/tovfikur/virtual-world-sub003/jobs/broadcaster"
	"github.com/tovfikur/virtual-world-sub003/service"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, nil)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// ---------------- Durability ----------------

	jrn, err := journal.Open(journal.Config{
		Dir:             cfg.Journal.Dir,
		SegmentSize:     cfg.Journal.SegmentSize,
		SegmentDuration: cfg.Journal.SegmentDuration,
	})
	if err != nil {
		logger.Fatal("journal init failed", zap.Error(err))
	}
	defer jrn.Close()

	db, err := store.Open(cfg.Store.Dir)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer db.Close()

	out, err := outbox.Open(cfg.Outbox.Dir)
	if err != nil {
		logger.Fatal("outbox init failed", zap.Error(err))
	}
	defer out.Close()

	// ---------------- Exchange ----------------

	met := metrics.New()
	x := service.NewExchange(service.Deps{
		Log:     logger,
		Journal: jrn,
		Store:   db,
		Outbox:  out,
		Metrics: met,
	})

	// Recovery must finish before anything else runs.
	if err := x.Recover(cfg.Journal.Dir); err != nil {
		logger.Fatal("recovery failed", zap.Error(err))
	}

	// ---------------- Background jobs ----------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go x.RunSnapshotJob(ctx, cfg.Snapshot.Interval)

	if cfg.Kafka.Enabled {
		bc, err := broadcaster.New(logger.Named("broadcaster"), out, broadcaster.Config{
			Brokers:    cfg.Kafka.Brokers,
			Topic:      cfg.Kafka.Topic,
			AuditTopic: cfg.Kafka.AuditTopic,
			Interval:   cfg.Kafka.Interval,
		})
		if err != nil {
			logger.Fatal("broadcaster init failed", zap.Error(err))
		}
		defer bc.Close()
		go bc.Run(ctx)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", met.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			logger.Error("metrics listener exited", zap.Error(err))
		}
	}()

	logger.Info("exchange running",
		zap.String("metrics", cfg.Metrics.Addr),
		zap.Bool("kafka", cfg.Kafka.Enabled))

	<-ctx.Done()
	logger.Info("shutting down")
}
