package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"linkvault/internal/app"
	"linkvault/internal/config"
	"linkvault/internal/database"
	"linkvault/internal/domain/accesslog"
	"linkvault/internal/domain/link"
	"linkvault/internal/logger"
	"linkvault/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("load config")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.Component("api")

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := database.Migrate(db, cfg.DatabaseURL, &link.Link{}, &accesslog.AccessLog{}); err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	blobs, err := storage.NewFromConfig(cfg.Storage, cfg.PublicBaseURL)
	if err != nil {
		log.WithError(err).Fatal("init storage")
	}

	a, err := app.New(cfg, db, blobs)
	if err != nil {
		log.WithError(err).Fatal("wire application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// workers outlive the signal so in-flight requests can still record
	a.Start(context.Background())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).WithField("storage", cfg.Storage.Provider).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}

	a.Close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("stopped")
}
