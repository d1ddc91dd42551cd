package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Schema:
//
//	CREATE TABLE course_mappings (
//	    origin_course_id TEXT PRIMARY KEY,
//	    target_step_id   TEXT NOT NULL,
//	    status           TEXT NOT NULL,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

func (p *PostgresRepository) Put(ctx context.Context, originCourseID, targetStepID string) error {
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO course_mappings (origin_course_id, target_step_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)`,
		originCourseID, targetStepID, StatusPendingExport, now)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("store: insert mapping: %w", err)
	}
	return nil
}

func (p *PostgresRepository) Get(ctx context.Context, originCourseID string) (CourseMapping, error) {
	var m CourseMapping
	err := p.db.QueryRowContext(ctx,
		`SELECT origin_course_id, target_step_id, status, created_at, updated_at
		 FROM course_mappings WHERE origin_course_id = $1`,
		originCourseID).
		Scan(&m.OriginCourseID, &m.TargetStepID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CourseMapping{}, ErrNotFound
	}
	if err != nil {
		return CourseMapping{}, fmt.Errorf("store: select mapping: %w", err)
	}
	return m, nil
}

// UpdateStatus is a compare-and-swap: the UPDATE only matches when the
// stored status still equals the expected prior status. A miss on an
// existing row means another writer got there first.
func (p *PostgresRepository) UpdateStatus(ctx context.Context, originCourseID string, from, to Status) error {
	if !ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE course_mappings SET status = $1, updated_at = $2
		 WHERE origin_course_id = $3 AND status = $4`,
		to, time.Now().UTC(), originCourseID, from)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if n == 0 {
		if _, gerr := p.Get(ctx, originCourseID); gerr != nil {
			return gerr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (p *PostgresRepository) Exists(ctx context.Context, originCourseID string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_mappings WHERE origin_course_id = $1)`,
		originCourseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return exists, nil
}

func (p *PostgresRepository) List(ctx context.Context) ([]CourseMapping, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT origin_course_id, target_step_id, status, created_at, updated_at
		 FROM course_mappings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []CourseMapping
	for rows.Next() {
		var m CourseMapping
		if err := rows.Scan(&m.OriginCourseID, &m.TargetStepID, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	return mappings, nil
}
