package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps mappings in process memory. It exists for tests
// and local development; it does not survive restarts, so production runs
// should use the postgres or mongo backends.
type MemoryRepository struct {
	mu       sync.Mutex
	mappings map[string]CourseMapping
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{mappings: make(map[string]CourseMapping)}
}

func (r *MemoryRepository) Put(_ context.Context, originCourseID, targetStepID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappings[originCourseID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	r.mappings[originCourseID] = CourseMapping{
		OriginCourseID: originCourseID,
		TargetStepID:   targetStepID,
		Status:         StatusPendingExport,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, originCourseID string) (CourseMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[originCourseID]
	if !ok {
		return CourseMapping{}, ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, originCourseID string, from, to Status) error {
	if !ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mappings[originCourseID]
	if !ok {
		return ErrNotFound
	}
	if m.Status != from {
		return ErrInvalidTransition
	}
	m.Status = to
	m.UpdatedAt = time.Now().UTC()
	r.mappings[originCourseID] = m
	return nil
}

func (r *MemoryRepository) Exists(_ context.Context, originCourseID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.mappings[originCourseID]
	return ok, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]CourseMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CourseMapping, 0, len(r.mappings))
	for _, m := range r.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
