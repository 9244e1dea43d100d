package task

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Store persists tasks. Every method is scoped by owner; a task owned by
// someone else is indistinguishable from a missing one.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (Task, error)
	List(ctx context.Context, q Query) ([]Task, int64, error)
	// Update loads the task, applies fn and persists the result atomically.
	Update(ctx context.Context, ownerID, id uuid.UUID, fn func(*Task) error) (Task, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]Task
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{tasks: make(map[uuid.UUID]Task)}
}

func (s *InMemory) Create(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *InMemory) Get(_ context.Context, ownerID, id uuid.UUID) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (s *InMemory) List(_ context.Context, q Query) ([]Task, int64, error) {
	s.mu.RLock()
	matched := make([]Task, 0)
	for _, t := range s.tasks {
		if t.OwnerID != q.OwnerID {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		matched = append(matched, t)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	total := int64(len(matched))
	if q.Offset < 0 || q.Offset >= len(matched) {
		return []Task{}, total, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	return matched[q.Offset:end], total, nil
}

func (s *InMemory) Update(_ context.Context, ownerID, id uuid.UUID, fn func(*Task) error) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return Task{}, ErrNotFound
	}
	if err := fn(&t); err != nil {
		return Task{}, err
	}
	s.tasks[id] = t
	return t, nil
}

func (s *InMemory) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}
