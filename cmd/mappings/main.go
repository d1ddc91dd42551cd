package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"scorm-bridge/internal/config"
	"scorm-bridge/internal/devutil"
	"scorm-bridge/internal/store"
)

// Operator tool: inspect course mappings to spot stuck exports
// (pending_export for hours) or failed uploads awaiting redelivery.
func main() {
	courseID := flag.String("course", "", "show a single mapping by origin course id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := store.NewRepository(ctx, store.Config{
		Type:       cfg.Store.Type,
		DSN:        cfg.Store.DSN,
		URI:        cfg.Store.URI,
		Database:   cfg.Store.Database,
		Collection: cfg.Store.Collection,
	})
	if err != nil {
		log.Fatalf("mapping store error: %v", err)
	}

	if *courseID != "" {
		m, err := repo.Get(ctx, *courseID)
		if err != nil {
			log.Fatalf("get mapping: %v", err)
		}
		fmt.Println(devutil.Pick(m, "originCourseId", "targetStepId", "status", "createdAt", "updatedAt"))
		return
	}

	mappings, err := repo.List(ctx)
	if err != nil {
		log.Fatalf("list mappings: %v", err)
	}

	fmt.Printf("%-16s %-16s %-16s %-25s %s\n", "ORIGIN COURSE", "TARGET STEP", "STATUS", "CREATED", "UPDATED")
	for _, m := range mappings {
		fmt.Printf("%-16s %-16s %-16s %-25s %s\n",
			m.OriginCourseID,
			m.TargetStepID,
			m.Status,
			m.CreatedAt.Format(time.RFC3339),
			m.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Printf("\n%d mapping(s)\n", len(mappings))
}
