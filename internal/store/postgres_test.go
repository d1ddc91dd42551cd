package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestPostgresPut(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`INSERT INTO course_mappings \(origin_course_id, target_step_id, status, created_at, updated_at\) VALUES \(\$1, \$2, \$3, \$4, \$4\)`).
		WithArgs("C1", "S1", "pending_export", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Put(context.Background(), "C1", "S1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPutDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`INSERT INTO course_mappings`).
		WithArgs("C1", "S2", "pending_export", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	err = repo.Put(context.Background(), "C1", "S2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"origin_course_id", "target_step_id", "status", "created_at", "updated_at"}).
		AddRow("C1", "S1", "pending_export", now, now)

	mock.ExpectQuery(`SELECT origin_course_id, target_step_id, status, created_at, updated_at FROM course_mappings WHERE origin_course_id = \$1`).
		WithArgs("C1").
		WillReturnRows(rows)

	m, err := repo.Get(context.Background(), "C1")
	assert.NoError(t, err)
	assert.Equal(t, "C1", m.OriginCourseID)
	assert.Equal(t, "S1", m.TargetStepID)
	assert.Equal(t, StatusPendingExport, m.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery(`SELECT origin_course_id, target_step_id, status, created_at, updated_at FROM course_mappings`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`UPDATE course_mappings SET status = \$1, updated_at = \$2 WHERE origin_course_id = \$3 AND status = \$4`).
		WithArgs("delivered", sqlmock.AnyArg(), "C1", "pending_export").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.UpdateStatus(context.Background(), "C1", StatusPendingExport, StatusDelivered)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatusIllegalTransition(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	// delivered is terminal, rejected before any SQL runs
	err = repo.UpdateStatus(context.Background(), "C1", StatusDelivered, StatusUploadFailed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPostgresUpdateStatusLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	// the conditional UPDATE misses because a concurrent writer already
	// moved the status; the row still exists
	mock.ExpectExec(`UPDATE course_mappings SET status = \$1, updated_at = \$2 WHERE origin_course_id = \$3 AND status = \$4`).
		WithArgs("delivered", sqlmock.AnyArg(), "C1", "pending_export").
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"origin_course_id", "target_step_id", "status", "created_at", "updated_at"}).
		AddRow("C1", "S1", "delivered", now, now)
	mock.ExpectQuery(`SELECT origin_course_id, target_step_id, status, created_at, updated_at FROM course_mappings WHERE origin_course_id = \$1`).
		WithArgs("C1").
		WillReturnRows(rows)

	err = repo.UpdateStatus(context.Background(), "C1", StatusPendingExport, StatusDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectExec(`UPDATE course_mappings SET status = \$1, updated_at = \$2 WHERE origin_course_id = \$3 AND status = \$4`).
		WithArgs("delivered", sqlmock.AnyArg(), "missing", "pending_export").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT origin_course_id, target_step_id, status, created_at, updated_at FROM course_mappings WHERE origin_course_id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err = repo.UpdateStatus(context.Background(), "missing", StatusPendingExport, StatusDelivered)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM course_mappings WHERE origin_course_id = \$1\)`).
		WithArgs("C1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "C1")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"origin_course_id", "target_step_id", "status", "created_at", "updated_at"}).
		AddRow("C2", "S2", "delivered", now, now).
		AddRow("C1", "S1", "pending_export", now.Add(-time.Hour), now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT origin_course_id, target_step_id, status, created_at, updated_at FROM course_mappings ORDER BY created_at DESC`).
		WillReturnRows(rows)

	mappings, err := repo.List(context.Background())
	assert.NoError(t, err)
	assert.Len(t, mappings, 2)
	assert.Equal(t, "C2", mappings[0].OriginCourseID)
	assert.Equal(t, StatusDelivered, mappings[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
