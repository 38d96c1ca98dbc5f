package job

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory map guarded by a mutex.
// Job ids are assigned from a process-local counter.
type MemoryStore struct {
	mu     sync.RWMutex
	jobs   map[int64]*PrintJob
	nextID int64
}

// NewMemoryStore creates a new in-memory job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[int64]*PrintJob),
		nextID: 1,
	}
}

// Submit creates a job in pending state with a fresh id.
func (s *MemoryStore) Submit(_ context.Context, chatID int64, fileName string) (*PrintJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &PrintJob{
		ID:          s.nextID,
		ChatID:      chatID,
		FileName:    fileName,
		State:       StatePending,
		SubmittedAt: time.Now(),
	}
	s.nextID++
	s.jobs[j.ID] = j

	jc := *j
	return &jc, nil
}

// Get retrieves a job by id. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, id int64) (*PrintJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	jc := *j
	return &jc, nil
}

// List returns jobs in the given state, ordered by submission time
// with the id as tie-break so listings match the PostgreSQL store.
// Pending jobs are ascending; terminal states most-recent first,
// capped at CompletedListLimit.
func (s *MemoryStore) List(_ context.Context, state State) ([]*PrintJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*PrintJob
	for _, j := range s.jobs {
		if j.State == state {
			jc := *j
			result = append(result, &jc)
		}
	}

	if state == StatePending {
		sort.Slice(result, func(i, k int) bool {
			if result[i].SubmittedAt.Equal(result[k].SubmittedAt) {
				return result[i].ID < result[k].ID
			}
			return result[i].SubmittedAt.Before(result[k].SubmittedAt)
		})
		return result, nil
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].SubmittedAt.Equal(result[k].SubmittedAt) {
			return result[i].ID > result[k].ID
		}
		return result[i].SubmittedAt.After(result[k].SubmittedAt)
	})
	if len(result) > CompletedListLimit {
		result = result[:CompletedListLimit]
	}
	return result, nil
}

// Cancel transitions a pending job to cancelled.
func (s *MemoryStore) Cancel(_ context.Context, id, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.ChatID != chatID {
		return ErrForbidden
	}
	if j.State != StatePending {
		return ErrInvalidState
	}

	now := time.Now()
	j.State = StateCancelled
	j.CompletedAt = &now
	return nil
}

// UpdateState transitions a job, enforcing the lifecycle rules.
func (s *MemoryStore) UpdateState(_ context.Context, id int64, state State, res *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !j.State.CanTransition(state) {
		return ErrInvalidTransition
	}

	j.State = state
	if res != nil {
		if res.Pages > 0 {
			j.Pages = res.Pages
		}
		j.Error = res.Error
	}
	if state.Terminal() && j.CompletedAt == nil {
		now := time.Now()
		j.CompletedAt = &now
	}
	return nil
}

// Close releases resources held by the store.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
