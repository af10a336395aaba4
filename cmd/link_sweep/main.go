package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"linkvault/internal/config"
	"linkvault/internal/database"
	"linkvault/internal/domain/accesslog"
	"linkvault/internal/domain/link"
	"linkvault/internal/logger"
)

func main() {
	every := flag.Duration("every", 0, "repeat the sweep at this interval; 0 runs once")
	timeout := flag.Duration("timeout", 30*time.Second, "per-sweep database timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("load config")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.Component("link_sweep")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	store := link.NewRepository(db)

	// expire events go to the access log; live subscribers live in the api process
	recorder := accesslog.NewRecorder(accesslog.NewRepository(db), nil, cfg.AccessLog.Buffer, cfg.AccessLog.Workers)
	recorder.Start(context.Background())
	defer recorder.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweep := func() error {
		sctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		now := time.Now().UTC()
		expired, err := store.ExpireOverdue(sctx, now)
		for _, l := range expired {
			recorder.Record(link.ExpireEvent(l, now))
		}
		if err != nil {
			return err
		}
		log.WithField("expired", len(expired)).Info("link sweep completed")
		return nil
	}

	if *every <= 0 {
		if err := sweep(); err != nil {
			recorder.Close()
			log.WithError(err).Fatal("link sweep failed")
		}
		return
	}

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		if err := sweep(); err != nil {
			log.WithError(err).Error("link sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
