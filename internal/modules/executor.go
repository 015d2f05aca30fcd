package modules

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/store"
	"github.com/opspulse/opspulse/internal/types"
)

// handlerResult carries a handler's outcome across the executor boundary.
type handlerResult struct {
	message string
	extra   map[string]string
	err     error
}

// Executor runs task handlers to completion or failure. Nothing a handler
// does (an error, a panic, or blowing through its time limits) escapes
// Execute: the caller always gets back exactly one well-formed run record,
// and exactly one record is appended to the sink per invocation.
type Executor struct {
	handlers Registry
	deps     *Deps
	sink     *store.SafeSink
	soft     time.Duration
	hard     time.Duration
	logger   *log.Logger
}

func NewExecutor(handlers Registry, deps *Deps, sink *store.SafeSink, soft, hard time.Duration) *Executor {
	return &Executor{
		handlers: handlers,
		deps:     deps,
		sink:     sink,
		soft:     soft,
		hard:     hard,
		logger:   log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
	}
}

// Execute runs the handler for def and returns its run record. The
// handler's context is cancelled at the soft limit; at the hard limit the
// handler goroutine is abandoned and the run recorded as a timeout.
func (e *Executor) Execute(ctx context.Context, def schedule.TaskDef) types.TaskRun {
	started := time.Now()
	e.logger.Printf("Executing %s", def.Name)

	run := types.TaskRun{
		ID:        uuid.NewString(),
		TaskName:  def.Name,
		Queue:     def.Queue,
		StartedAt: started,
	}

	handler, ok := e.handlers[def.Name]
	if !ok {
		run.FinishedAt = time.Now()
		run.Status = types.RunStatusFailure
		run.Message = fmt.Sprintf("no handler registered for task %q", def.Name)
		e.finish(ctx, run)
		return run
	}

	handlerCtx, cancel := context.WithTimeout(ctx, e.soft)
	defer cancel()

	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerResult{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		message, extra, err := handler(handlerCtx, e.deps)
		done <- handlerResult{message: message, extra: extra, err: err}
	}()

	hardTimer := time.NewTimer(e.hard)
	defer hardTimer.Stop()

	select {
	case result := <-done:
		run.FinishedAt = time.Now()
		run.Extra = result.extra
		switch {
		case result.err == nil:
			run.Status = types.RunStatusSuccess
			run.Message = result.message
			if run.Message == "" {
				run.Message = "completed"
			}
		case errors.Is(result.err, context.DeadlineExceeded):
			run.Status = types.RunStatusFailure
			run.Message = fmt.Sprintf("timed out: soft time limit %v exceeded", e.soft)
		default:
			run.Status = types.RunStatusFailure
			run.Message = result.err.Error()
		}
	case <-hardTimer.C:
		// The handler ignored its cancelled context. Abandon it and
		// record the run; the goroutine exits whenever the handler does.
		run.FinishedAt = time.Now()
		run.Status = types.RunStatusFailure
		run.Message = fmt.Sprintf("timed out: hard time limit %v exceeded, handler abandoned", e.hard)
	}

	e.finish(ctx, run)
	return run
}

func (e *Executor) finish(ctx context.Context, run types.TaskRun) {
	e.logger.Printf("Finished %s status=%s in %v: %s",
		run.TaskName, run.Status, run.Duration(), run.Message)
	e.sink.Append(ctx, run)
}
