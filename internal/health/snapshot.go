// Package health builds point-in-time snapshots of system, database,
// cache and AI-service health. A snapshot degrades section by section:
// one failing source marks its own section with an error and leaves the
// rest intact.
package health

import (
	"time"

	"github.com/opspulse/opspulse/internal/metrics"
)

// SystemSection reports host resource usage.
type SystemSection struct {
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryPercent   float64 `json:"memory_percent"`
	MemoryAvailable uint64  `json:"memory_available"`
	DiskPercent     float64 `json:"disk_percent"`
	DiskFree        uint64  `json:"disk_free"`
	Error           string  `json:"error,omitempty"`
}

// DatabaseSection reports connection pool health.
type DatabaseSection struct {
	Reachable       bool   `json:"reachable"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	Error           string `json:"error,omitempty"`
}

// CacheSection reports cache effectiveness.
type CacheSection struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Error   string  `json:"error,omitempty"`
}

// Snapshot is a point-in-time aggregate of every health source. It is
// computed on demand and not persisted as its own entity.
type Snapshot struct {
	Timestamp  time.Time                        `json:"timestamp"`
	System     SystemSection                    `json:"system"`
	Database   DatabaseSection                  `json:"database"`
	Cache      CacheSection                     `json:"cache"`
	Services   map[string]metrics.ServiceReport `json:"services"`
	ServiceErr string                           `json:"services_error,omitempty"`
}

// Healthy reports whether every section was collected without error.
func (s Snapshot) Healthy() bool {
	return s.System.Error == "" && s.Database.Error == "" &&
		s.Cache.Error == "" && s.ServiceErr == ""
}

// HitRate derives a cache hit ratio in [0,1]. Defined as 0 when there is
// no traffic at all, avoiding a division by zero.
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
