package task

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/modelgate/internal/domain"
	"github.com/phrazzld/modelgate/internal/store"
)

// memStore is an in-memory TaskStore used by tests. It reproduces the
// conditional-update semantics of the real store, including ErrStaleStatus
// on a failed precondition, so concurrency tests exercise the same races.
type memStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.Result != nil {
		c.Result = append([]byte(nil), t.Result...)
	}
	return &c
}

func (s *memStore) CreateTask(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, t.ID)
	}
	s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (s *memStore) GetTask(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (s *memStore) ListTasks(_ context.Context, filter store.ListFilter, page store.Page) (*store.TaskPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.Task
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Model != "" && t.Model != filter.Model {
			continue
		}
		if filter.Principal != "" && t.Principal != filter.Principal {
			continue
		}
		matched = append(matched, cloneTask(t))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	result := &store.TaskPage{Total: len(matched)}
	start := page.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	result.Tasks = matched[start:end]
	return result, nil
}

func (s *memStore) UpdateStatusIf(
	_ context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	update store.StatusUpdate,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != from {
		return fmt.Errorf("%w: expected %s, found %s", store.ErrStaleStatus, from, t.Status)
	}

	t.Status = to
	t.Result = nil
	t.Error = nil
	if update.Result != nil {
		t.Result = append([]byte(nil), update.Result...)
	}
	if update.Error != nil {
		e := *update.Error
		t.Error = &e
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) PendingTaskIDs(_ context.Context) ([]uuid.UUID, error) {
	return s.idsByStatus(domain.TaskStatusPending, 0)
}

func (s *memStore) StaleProcessingIDs(_ context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	return s.idsByStatus(domain.TaskStatusProcessing, olderThan)
}

func (s *memStore) idsByStatus(status domain.TaskStatus, olderThan time.Duration) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var ids []uuid.UUID
	for id, t := range s.tasks {
		if t.Status != status {
			continue
		}
		if olderThan > 0 && !t.UpdatedAt.Before(cutoff) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) WithTx(_ *sql.Tx) store.TaskStore { return s }
