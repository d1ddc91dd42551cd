package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MappingRepository is the durable ledger from Origin course id to the
// Target step provisioned for it.
//
// All operations are atomic per key. UpdateStatus is a conditional write on
// the expected prior status, so two concurrent deliveries for the same
// course cannot both move the mapping.
type MappingRepository interface {
	// Put creates a mapping in status pending_export. The target step id is
	// write-once: a second Put for the same course fails with ErrAlreadyExists
	// and leaves the first value authoritative.
	Put(ctx context.Context, originCourseID, targetStepID string) error
	// Get returns the mapping or ErrNotFound.
	Get(ctx context.Context, originCourseID string) (CourseMapping, error)
	// UpdateStatus moves the mapping from one status to another. It fails
	// with ErrNotFound when the mapping is absent, and ErrInvalidTransition
	// when the transition is illegal or the stored status no longer matches
	// the expected prior status.
	UpdateStatus(ctx context.Context, originCourseID string, from, to Status) error
	// Exists reports whether a mapping is present for the course.
	Exists(ctx context.Context, originCourseID string) (bool, error)
	// List returns all mappings, newest first.
	List(ctx context.Context) ([]CourseMapping, error)
}

// Config selects and connects a repository backend.
type Config struct {
	Type       string // "postgres", "mongo" or "memory"
	DSN        string // postgres
	URI        string // mongo
	Database   string // mongo
	Collection string // mongo
}

func NewRepository(ctx context.Context, cfg Config) (MappingRepository, error) {
	switch cfg.Type {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("store: open postgres: %w", err)
		}
		return NewPostgresRepository(db), nil
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, fmt.Errorf("store: connect mongo: %w", err)
		}
		return NewMongoRepository(client, cfg.Database, cfg.Collection), nil
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("store: unsupported repository type: %s", cfg.Type)
	}
}
