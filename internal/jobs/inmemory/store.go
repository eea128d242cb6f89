package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mzharov/finrecon/internal/jobs"
)

// TaskStore is an in-memory implementation of jobs.Store. Safe for
// concurrent use; state is lost on restart.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*jobs.Task
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*jobs.Task)}
}

// SaveTask implements the Store interface.
func (s *TaskStore) SaveTask(ctx context.Context, task *jobs.Task) error {
	if task.ID == "" {
		return fmt.Errorf("SaveTask: task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

// GetTask implements the Store interface.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*jobs.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, fmt.Errorf("GetTask: task not found: %s", id)
	}
	cp := *task
	return &cp, nil
}

// ListTasks implements the Store interface. Results sort by creation time
// then id so pagination is stable.
func (s *TaskStore) ListTasks(ctx context.Context, filter jobs.Filter) ([]*jobs.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.Task
	for _, task := range s.tasks {
		if filter.OwnerID != "" && task.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		cp := *task
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.Task{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.Store = (*TaskStore)(nil)
