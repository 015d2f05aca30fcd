// Package metrics accumulates per-AI-service call statistics. The
// accumulator is created once in main and handed to the components that
// need it; there is no package-level state.
package metrics

import (
	"sync"
	"time"
)

// ServiceReport is a read-only view of one service's accumulated stats.
type ServiceReport struct {
	TotalCalls       int           `json:"total_calls"`
	SuccessRate      float64       `json:"success_rate"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	MaxExecutionTime time.Duration `json:"max_execution_time"`
	AvgMemoryUsage   uint64        `json:"avg_memory_usage"`
}

type serviceCounters struct {
	calls     int
	successes int
	totalTime time.Duration
	maxTime   time.Duration
	totalMem  uint64
}

// ServiceStats is a thread-safe accumulator of per-service call counters.
type ServiceStats struct {
	mu       sync.RWMutex
	services map[string]*serviceCounters
}

// NewServiceStats initializes an empty accumulator.
func NewServiceStats() *ServiceStats {
	return &ServiceStats{services: make(map[string]*serviceCounters)}
}

// Record adds one call observation for the named service.
func (s *ServiceStats) Record(service string, elapsed time.Duration, memBytes uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.services[service]
	if !exists {
		c = &serviceCounters{}
		s.services[service] = c
	}
	c.calls++
	if ok {
		c.successes++
	}
	c.totalTime += elapsed
	if elapsed > c.maxTime {
		c.maxTime = elapsed
	}
	c.totalMem += memBytes
}

// Snapshot returns a copy of the current per-service reports.
func (s *ServiceStats) Snapshot() map[string]ServiceReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ServiceReport, len(s.services))
	for name, c := range s.services {
		report := ServiceReport{TotalCalls: c.calls}
		if c.calls > 0 {
			report.SuccessRate = float64(c.successes) / float64(c.calls)
			report.AvgExecutionTime = c.totalTime / time.Duration(c.calls)
			report.AvgMemoryUsage = c.totalMem / uint64(c.calls)
		}
		report.MaxExecutionTime = c.maxTime
		out[name] = report
	}
	return out
}
