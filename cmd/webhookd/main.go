package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scorm-bridge/internal/archive"
	"scorm-bridge/internal/config"
	"scorm-bridge/internal/logging"
	"scorm-bridge/internal/providers/target"
	"scorm-bridge/internal/store"
	"scorm-bridge/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, err := store.NewRepository(ctx, store.Config{
		Type:       cfg.Store.Type,
		DSN:        cfg.Store.DSN,
		URI:        cfg.Store.URI,
		Database:   cfg.Store.Database,
		Collection: cfg.Store.Collection,
	})
	cancel()
	if err != nil {
		logger.Fatal("mapping store error", zap.Error(err))
	}

	tc := target.New(cfg.Target.BaseURL, cfg.Target.PublicKey, cfg.Target.PrivateKey, cfg.Target.CreatorUserID)

	h := &webhook.Handler{
		Store:  repo,
		Target: tc,
		Archive: archive.Config{
			Host:      cfg.Archive.Host,
			Port:      cfg.Archive.Port,
			User:      cfg.Archive.User,
			Pass:      cfg.Archive.Pass,
			RemoteDir: cfg.Archive.RemoteDir,
		},
		Log: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	h.Register(r, cfg.Webhook.Path)

	srv := &http.Server{
		Addr:         cfg.Webhook.ListenAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Minute, // packages arrive inline as base64
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("webhook receiver listening",
			zap.String("addr", cfg.Webhook.ListenAddr),
			zap.String("path", cfg.Webhook.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
