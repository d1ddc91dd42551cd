package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"scorm-bridge/internal/config"
	"scorm-bridge/internal/logging"
	"scorm-bridge/internal/providers/origin"
	"scorm-bridge/internal/providers/target"
	"scorm-bridge/internal/store"
	coursesync "scorm-bridge/internal/sync"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	repo, err := store.NewRepository(ctx, store.Config{
		Type:       cfg.Store.Type,
		DSN:        cfg.Store.DSN,
		URI:        cfg.Store.URI,
		Database:   cfg.Store.Database,
		Collection: cfg.Store.Collection,
	})
	if err != nil {
		logger.Fatal("mapping store error", zap.Error(err))
	}

	oc := origin.New(cfg.Origin.BaseURL, cfg.Origin.APIKey)
	oc.Export = origin.ExportOptions{
		ClientID:    cfg.Export.ClientID,
		Type:        cfg.Export.Type,
		Format:      cfg.Export.Format,
		Navigation:  cfg.Export.Navigation,
		WebhookVerb: cfg.Export.WebhookVerb,
	}

	tc := target.New(cfg.Target.BaseURL, cfg.Target.PublicKey, cfg.Target.PrivateKey, cfg.Target.CreatorUserID)
	if cfg.Target.Language != "" {
		tc.Language = cfg.Target.Language
	}

	orch := &coursesync.Orchestrator{
		Origin:      origin.Provider{C: oc},
		Target:      tc,
		Store:       repo,
		CallbackURL: cfg.Webhook.CallbackURL(),
		Workers:     cfg.Sync.Workers,
		Log:         logger,
	}

	report, err := orch.Run(ctx)
	if err != nil {
		logger.Fatal("sync run aborted", zap.Error(err))
	}

	provisioned, skipped, failed := report.Counts()
	for _, res := range report.Results {
		if res.Outcome == coursesync.OutcomeFailed {
			logger.Error("course failed",
				zap.String("origin_course_id", res.OriginCourseID),
				zap.String("title", res.Title),
				zap.Error(res.Err))
		}
	}
	logger.Info("sync run complete",
		zap.Int("provisioned", provisioned),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed))

	if failed > 0 {
		os.Exit(1)
	}
}
