package health

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemProbe reads host resource counters.
type SystemProbe interface {
	System(ctx context.Context) (SystemSection, error)
}

// DatabaseProbe checks connection pool liveness and usage.
type DatabaseProbe interface {
	Database(ctx context.Context) (DatabaseSection, error)
}

// CacheProbe reads cache hit/miss counters.
type CacheProbe interface {
	Cache(ctx context.Context) (int64, int64, error)
}

// GopsutilProbe reads system counters from the host via gopsutil.
type GopsutilProbe struct {
	DiskPath string // mount point to report on; defaults to "/"
}

func (p GopsutilProbe) System(ctx context.Context) (SystemSection, error) {
	var section SystemSection

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return section, fmt.Errorf("cpu: %w", err)
	}
	if len(cpuPercents) > 0 {
		section.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return section, fmt.Errorf("memory: %w", err)
	}
	section.MemoryPercent = vm.UsedPercent
	section.MemoryAvailable = vm.Available

	path := p.DiskPath
	if path == "" {
		path = "/"
	}
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return section, fmt.Errorf("disk: %w", err)
	}
	section.DiskPercent = usage.UsedPercent
	section.DiskFree = usage.Free

	return section, nil
}

// SQLProbe checks a database/sql pool.
type SQLProbe struct {
	DB *sql.DB
}

func (p SQLProbe) Database(ctx context.Context) (DatabaseSection, error) {
	if p.DB == nil {
		return DatabaseSection{}, fmt.Errorf("no database configured")
	}
	if err := p.DB.PingContext(ctx); err != nil {
		return DatabaseSection{}, fmt.Errorf("ping: %w", err)
	}
	stats := p.DB.Stats()
	return DatabaseSection{
		Reachable:       true,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}, nil
}

// RedisProbe reads keyspace hit/miss counters from Redis INFO.
type RedisProbe struct {
	Client *redis.Client
}

func (p RedisProbe) Cache(ctx context.Context) (int64, int64, error) {
	if p.Client == nil {
		return 0, 0, fmt.Errorf("no cache configured")
	}
	info, err := p.Client.Info(ctx, "stats").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis info: %w", err)
	}
	hits := parseInfoCounter(info, "keyspace_hits")
	misses := parseInfoCounter(info, "keyspace_misses")
	return hits, misses, nil
}

// parseInfoCounter extracts one "key:value" counter from a redis INFO
// block. Missing or malformed counters read as 0.
func parseInfoCounter(info, key string) int64 {
	scanner := bufio.NewScanner(strings.NewReader(info))
	prefix := key + ":"
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, prefix) {
			v, err := strconv.ParseInt(strings.TrimPrefix(line, prefix), 10, 64)
			if err != nil {
				return 0
			}
			return v
		}
	}
	return 0
}
