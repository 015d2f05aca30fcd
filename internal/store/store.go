// Package store persists task run records. The run log is append-only:
// records are written once by the executor and queried later for audits.
package store

import (
	"context"
	"log"
	"time"

	"github.com/opspulse/opspulse/internal/types"
)

// RunFilter narrows a run query. Zero values mean "no constraint".
type RunFilter struct {
	TaskName string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// RunStore is the durable sink for task run records.
type RunStore interface {
	Append(ctx context.Context, run types.TaskRun) error
	Query(ctx context.Context, filter RunFilter) ([]types.TaskRun, error)
}

// SafeSink wraps a RunStore so that append failures are logged and
// swallowed. The executor must never fail a task because the audit log
// was unreachable.
type SafeSink struct {
	store  RunStore
	logger *log.Logger
}

// NewSafeSink wraps store with fallback logging.
func NewSafeSink(s RunStore) *SafeSink {
	return &SafeSink{
		store:  s,
		logger: log.New(log.Writer(), "[RUNSTORE] ", log.LstdFlags),
	}
}

// Append writes the record, logging the record itself to the process log
// if the underlying store rejects it.
func (s *SafeSink) Append(ctx context.Context, run types.TaskRun) {
	if err := s.store.Append(ctx, run); err != nil {
		s.logger.Printf("append failed (%v); run %s task=%s status=%s message=%q",
			err, run.ID, run.TaskName, run.Status, run.Message)
	}
}
