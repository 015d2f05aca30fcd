package health

import (
	"context"
	"time"

	"github.com/opspulse/opspulse/internal/metrics"
)

// Collector assembles snapshots from its probes. Any probe may be nil or
// failing; the corresponding section is marked with an error and the rest
// of the snapshot is still produced.
type Collector struct {
	system   SystemProbe
	database DatabaseProbe
	cache    CacheProbe
	services *metrics.ServiceStats
	now      func() time.Time
}

// NewCollector wires a collector from its probes. services may be nil if
// no accumulator is running in this process.
func NewCollector(system SystemProbe, database DatabaseProbe, cache CacheProbe, services *metrics.ServiceStats) *Collector {
	return &Collector{
		system:   system,
		database: database,
		cache:    cache,
		services: services,
		now:      time.Now,
	}
}

// Snapshot produces a point-in-time health snapshot. It never returns an
// error: probe failures degrade their own section only.
func (c *Collector) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{Timestamp: c.now()}

	if c.system == nil {
		snap.System.Error = "system probe unavailable"
	} else if section, err := c.system.System(ctx); err != nil {
		snap.System.Error = err.Error()
	} else {
		snap.System = section
	}

	if c.database == nil {
		snap.Database.Error = "database probe unavailable"
	} else if section, err := c.database.Database(ctx); err != nil {
		snap.Database.Error = err.Error()
	} else {
		snap.Database = section
	}

	if c.cache == nil {
		snap.Cache.Error = "cache probe unavailable"
	} else if hits, misses, err := c.cache.Cache(ctx); err != nil {
		snap.Cache.Error = err.Error()
	} else {
		snap.Cache = CacheSection{
			Hits:    hits,
			Misses:  misses,
			HitRate: HitRate(hits, misses),
		}
	}

	if c.services == nil {
		snap.Services = map[string]metrics.ServiceReport{}
		snap.ServiceErr = "service stats unavailable"
	} else {
		snap.Services = c.services.Snapshot()
	}

	return snap
}
