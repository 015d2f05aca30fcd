package modules

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/types"
)

// Scheduler evaluates the recurring-task table every tick and dispatches
// due tasks onto their queue subjects. The table is fixed at construction;
// there is no runtime task registration.
type Scheduler struct {
	nc        *nats.Conn
	table     []schedule.TaskDef
	tick      time.Duration
	logger    *log.Logger
	mutex     sync.Mutex
	lastFired map[string]time.Time
}

func NewScheduler(nc *nats.Conn, table []schedule.TaskDef, tick time.Duration) *Scheduler {
	return &Scheduler{
		nc:        nc,
		table:     table,
		tick:      tick,
		logger:    log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags),
		lastFired: make(map[string]time.Time),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.scheduleLoop(ctx)
	return nil
}

func (s *Scheduler) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(now)
		}
	}
}

// dispatchDue publishes an envelope for every task whose cadence matches
// the current minute. A task fires at most once per matching minute, so a
// tick interval shorter than a minute cannot double-dispatch.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	minute := now.Truncate(time.Minute)
	for _, def := range schedule.Due(s.table, now) {
		if s.lastFired[def.Name].Equal(minute) {
			continue
		}
		s.lastFired[def.Name] = minute

		envelope := types.Envelope{Name: def.Name, Queue: def.Queue, FiredAt: minute}
		data, err := json.Marshal(envelope)
		if err != nil {
			s.logger.Printf("Error marshaling envelope for %s: %v", def.Name, err)
			continue
		}
		if err := s.nc.Publish(def.Queue.Subject(), data); err != nil {
			s.logger.Printf("Error dispatching task %s: %v", def.Name, err)
			continue
		}
		s.logger.Printf("Dispatched %s to %s", def.Name, def.Queue.Subject())
	}
}

func (s *Scheduler) Stop() error {
	return nil
}
