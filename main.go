package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/opspulse/opspulse/internal/config"
	"github.com/opspulse/opspulse/internal/health"
	"github.com/opspulse/opspulse/internal/metrics"
	"github.com/opspulse/opspulse/internal/modules"
	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/server"
	"github.com/opspulse/opspulse/internal/store"
	"github.com/opspulse/opspulse/internal/types"
)

var (
	Version   string
	BuildTime string
	GitCommit string
)

func main() {
	// Command line flags
	moduleList := flag.String("modules", "all", "Comma-separated list of modules to run (scheduler,worker,reporter,api) or 'all'")
	mode := flag.String("mode", "run", "run, health-check (print a snapshot and exit) or optimize (run the optimization task once and exit)")
	storeKind := flag.String("store", "postgres", "Run store backend: postgres or memory")
	httpPort := flag.String("port", "8080", "HTTP port for API")
	flag.Parse()

	log.Printf("Starting opspulse %s (Built: %s, Commit: %s)", Version, BuildTime, GitCommit)

	// Load .env if present, otherwise rely on the process environment
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Cache client. Creation does not dial; an unreachable cache degrades
	// the snapshot's cache section instead of failing startup.
	cache := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer cache.Close()

	// Run store and request queue share a backend
	var (
		runStore store.RunStore
		requests modules.RequestQueue
		pg       *store.PostgresStore
	)
	switch *storeKind {
	case "postgres":
		pg, err = store.OpenPostgres(cfg.Database.DSN())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		runStore = pg
		requests = pg
		log.Println("Successfully connected to database")
	case "memory":
		mem := store.NewMemoryStore()
		runStore = mem
		requests = mem
		log.Println("Using in-memory run store")
	default:
		log.Fatalf("Unknown store backend %q", *storeKind)
	}

	stats := metrics.NewServiceStats()

	dbProbe := health.SQLProbe{}
	if pg != nil {
		dbProbe.DB = pg.DB()
	}
	collector := health.NewCollector(health.GopsutilProbe{}, dbProbe, health.RedisProbe{Client: cache}, stats)

	deps := &modules.Deps{
		Cfg:       cfg,
		Cache:     cache,
		Runs:      runStore,
		Requests:  requests,
		Collector: collector,
		Stats:     stats,
	}

	table := schedule.Table()
	executor := modules.NewExecutor(modules.DefaultRegistry(), deps, store.NewSafeSink(runStore),
		cfg.Tasks.SoftTimeLimit, cfg.Tasks.HardTimeLimit)

	// One-shot reporting modes
	switch *mode {
	case "health-check":
		runHealthCheck(collector)
		return
	case "optimize":
		runOptimize(executor, table)
		return
	case "run":
		// fall through to the module runner
	default:
		log.Fatalf("Unknown mode %q", *mode)
	}

	// Connect to NATS
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize module registry
	reporter := modules.NewReporter(nc, stats)
	moduleRegistry := make(map[string]modules.Module)
	moduleRegistry["scheduler"] = modules.NewScheduler(nc, table, cfg.Tasks.TickInterval)
	moduleRegistry["worker"] = modules.NewWorker(nc, executor, table, cfg.Tasks.RecycleAfter)
	moduleRegistry["reporter"] = reporter

	// Determine which modules to run
	var modulesToRun []string
	if *moduleList == "all" {
		modulesToRun = []string{"scheduler", "worker", "reporter", "api"}
	} else {
		modulesToRun = strings.Split(*moduleList, ",")
	}

	// Start selected modules
	var wg sync.WaitGroup
	for _, name := range modulesToRun {
		if name == "api" {
			apiServer := server.NewAPIServer(*httpPort, collector, runStore, reporter, table)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := apiServer.Start(ctx); err != nil {
					log.Printf("API server error: %v", err)
				}
			}()
			continue
		}

		if module, exists := moduleRegistry[name]; exists {
			wg.Add(1)
			go func(m modules.Module, name string) {
				defer wg.Done()
				log.Printf("Starting module: %s", name)
				if err := m.Start(ctx); err != nil {
					log.Printf("Module %s error: %v", name, err)
				}
			}(module, name)
		}
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()
	for _, name := range modulesToRun {
		if module, exists := moduleRegistry[name]; exists {
			if err := module.Stop(); err != nil {
				log.Printf("Module %s stop error: %v", name, err)
			}
		}
	}
	wg.Wait()
}

// runHealthCheck prints one health snapshot. Degraded sections carry
// their own error markers inside the snapshot; this never fails.
func runHealthCheck(collector *health.Collector) {
	snap := collector.Snapshot(context.Background())
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode snapshot: %v", err)
	}
	fmt.Println(string(data))
}

// runOptimize executes the optimization task once and prints its run
// record. A failed run is reported, not re-raised.
func runOptimize(executor *modules.Executor, table []schedule.TaskDef) {
	def, ok := schedule.Lookup(table, schedule.TaskOptimizePerformance)
	if !ok {
		log.Fatalf("Task %s missing from the schedule table", schedule.TaskOptimizePerformance)
	}

	run := executor.Execute(context.Background(), def)
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode run record: %v", err)
	}
	fmt.Println(string(data))
	if run.Status == types.RunStatusFailure {
		fmt.Printf("optimization failed: %s\n", run.Message)
	} else {
		fmt.Printf("optimization succeeded in %v\n", run.Duration())
	}
}
