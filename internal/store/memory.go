package store

import (
	"context"
	"sync"

	"github.com/opspulse/opspulse/internal/types"
)

// MemoryStore keeps run records and the AI-request queue in memory. Used
// by tests and by the -store=memory mode for running without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     []types.TaskRun
	requests []memoryRequest
	nextID   int64
}

type memoryRequest struct {
	req    PendingRequest
	status string
}

// NewMemoryStore initializes an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append adds a run record.
func (s *MemoryStore) Append(_ context.Context, run types.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Query returns records matching the filter, newest first.
func (s *MemoryStore) Query(_ context.Context, filter RunFilter) ([]types.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.TaskRun
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if filter.TaskName != "" && run.TaskName != filter.TaskName {
			continue
		}
		if !filter.Since.IsZero() && run.StartedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && run.StartedAt.After(filter.Until) {
			continue
		}
		out = append(out, run)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// AddRequest enqueues a pending AI request and returns its id.
func (s *MemoryStore) AddRequest(service string, payload []byte) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.requests = append(s.requests, memoryRequest{
		req:    PendingRequest{ID: s.nextID, Service: service, Payload: payload},
		status: "pending",
	})
	return s.nextID
}

// PendingRequests claims up to limit pending requests in enqueue order.
// Claimed requests move to the processing state, so concurrent callers
// receive disjoint batches.
func (s *MemoryStore) PendingRequests(_ context.Context, limit int) ([]PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []PendingRequest
	for i := range s.requests {
		if len(claimed) >= limit {
			break
		}
		if s.requests[i].status != "pending" {
			continue
		}
		s.requests[i].status = "processing"
		claimed = append(claimed, s.requests[i].req)
	}
	return claimed, nil
}

// MarkProcessed completes claimed requests. Ids that are not in the
// processing state are left alone, so calling twice is safe.
func (s *MemoryStore) MarkProcessed(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.requests {
		if want[s.requests[i].req.ID] && s.requests[i].status == "processing" {
			s.requests[i].status = "processed"
		}
	}
	return nil
}
