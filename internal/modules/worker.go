package modules

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/types"
)

// queueGroup load-balances task delivery across worker processes.
const queueGroup = "workers"

// resultSubject carries finished run records to the reporter.
const resultSubject = "task.result"

// Worker consumes task envelopes from every queue lane and runs them
// through the executor. After recycleAfter completed tasks the worker
// drops and re-creates its subscriptions, bounding resource growth in a
// long-lived process.
type Worker struct {
	nc           *nats.Conn
	executor     *Executor
	table        []schedule.TaskDef
	recycleAfter int
	logger       *log.Logger

	mutex     sync.Mutex
	ctx       context.Context
	subs      []*nats.Subscription
	completed int
}

func NewWorker(nc *nats.Conn, executor *Executor, table []schedule.TaskDef, recycleAfter int) *Worker {
	return &Worker{
		nc:           nc,
		executor:     executor,
		table:        table,
		recycleAfter: recycleAfter,
		logger:       log.New(log.Writer(), "[WORKER] ", log.LstdFlags),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.ctx = ctx
	return w.subscribeLocked()
}

// subscribeLocked opens one queue-group subscription per lane. Caller
// holds w.mutex.
func (w *Worker) subscribeLocked() error {
	for _, queue := range types.Queues() {
		sub, err := w.nc.QueueSubscribe(queue.Subject(), queueGroup, w.handleMessage)
		if err != nil {
			return err
		}
		w.subs = append(w.subs, sub)
	}
	w.logger.Printf("Subscribed to %d queue lanes", len(w.subs))
	return nil
}

func (w *Worker) handleMessage(msg *nats.Msg) {
	var envelope types.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		w.logger.Printf("Error unmarshaling envelope: %v", err)
		return
	}

	def, ok := schedule.Lookup(w.table, envelope.Name)
	if !ok {
		w.logger.Printf("Unknown task %q on %s, dropping", envelope.Name, msg.Subject)
		return
	}

	w.mutex.Lock()
	ctx := w.ctx
	w.mutex.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	run := w.executor.Execute(ctx, def)

	if data, err := json.Marshal(run); err == nil {
		if err := w.nc.Publish(resultSubject, data); err != nil {
			w.logger.Printf("Error publishing run result: %v", err)
		}
	} else {
		w.logger.Printf("Error marshaling run result: %v", err)
	}

	w.noteCompleted()
}

// noteCompleted counts a finished task and recycles the subscriptions
// once the threshold is reached.
func (w *Worker) noteCompleted() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.completed++
	if w.recycleAfter <= 0 || w.completed < w.recycleAfter {
		return
	}

	w.logger.Printf("Recycling after %d completed tasks", w.completed)
	w.drainLocked()
	w.completed = 0
	if w.ctx != nil && w.ctx.Err() == nil {
		if err := w.subscribeLocked(); err != nil {
			w.logger.Printf("Error resubscribing after recycle: %v", err)
		}
	}
}

// drainLocked unsubscribes every lane. Caller holds w.mutex.
func (w *Worker) drainLocked() {
	for _, sub := range w.subs {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Printf("Error unsubscribing: %v", err)
		}
	}
	w.subs = nil
}

// Completed reports how many tasks finished since the last recycle.
func (w *Worker) Completed() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.completed
}

func (w *Worker) Stop() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.drainLocked()
	return nil
}
