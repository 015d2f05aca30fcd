package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/opspulse/opspulse/internal/health"
	"github.com/opspulse/opspulse/internal/modules"
	"github.com/opspulse/opspulse/internal/schedule"
	"github.com/opspulse/opspulse/internal/store"
)

// APIServer is the read-only reporting surface: health snapshots, run
// history, reporter aggregates and the task table.
type APIServer struct {
	port      string
	collector *health.Collector
	runs      store.RunStore
	reporter  *modules.Reporter
	table     []schedule.TaskDef
	server    *http.Server
	logger    *log.Logger
}

// APIError represents an error response
type APIError struct {
	Error string `json:"error"`
}

// APIResponse represents a success response
type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func NewAPIServer(port string, collector *health.Collector, runs store.RunStore, reporter *modules.Reporter, table []schedule.TaskDef) *APIServer {
	return &APIServer{
		port:      port,
		collector: collector,
		runs:      runs,
		reporter:  reporter,
		table:     table,
		logger:    log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

func (s *APIServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/runs", s.handleRuns())
	mux.HandleFunc("/metrics", s.handleMetrics())
	mux.HandleFunc("/tasks", s.handleTasks())

	s.server = &http.Server{
		Addr:    ":" + s.port,
		Handler: s.logRequest(mux),
	}

	// Start server
	go func() {
		s.logger.Printf("API server starting on port %s", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("API server error: %v", err)
		}
	}()

	// Wait for context cancellation to stop server
	<-ctx.Done()
	return s.Stop()
}

func (s *APIServer) Stop() error {
	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Println("Shutting down API server...")
	return s.server.Shutdown(ctx)
}

// Middleware for logging requests
func (s *APIServer) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Printf("Started %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		s.logger.Printf("Completed %s %s in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Health snapshot handler
func (s *APIServer) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.collector == nil {
			s.writeError(w, "Health collector not available", http.StatusServiceUnavailable)
			return
		}

		snap := s.collector.Snapshot(r.Context())
		s.writeJSON(w, APIResponse{
			Message: "Health snapshot",
			Data:    snap,
		})
	}
}

// Run history handler: /runs?task=<name>&since=<RFC3339>&until=<RFC3339>&limit=<n>
func (s *APIServer) handleRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.runs == nil {
			s.writeError(w, "Run store not available", http.StatusServiceUnavailable)
			return
		}

		filter := store.RunFilter{
			TaskName: r.URL.Query().Get("task"),
			Limit:    50,
		}
		if raw := r.URL.Query().Get("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				s.writeError(w, "Invalid 'since' timestamp, expected RFC3339", http.StatusBadRequest)
				return
			}
			filter.Since = since
		}
		if raw := r.URL.Query().Get("until"); raw != "" {
			until, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				s.writeError(w, "Invalid 'until' timestamp, expected RFC3339", http.StatusBadRequest)
				return
			}
			filter.Until = until
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				s.writeError(w, "Invalid 'limit'", http.StatusBadRequest)
				return
			}
			filter.Limit = limit
		}

		runs, err := s.runs.Query(r.Context(), filter)
		if err != nil {
			s.logger.Printf("Error querying runs: %v", err)
			s.writeError(w, "Failed to query runs", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, APIResponse{
			Message: "Runs retrieved successfully",
			Data:    runs,
		})
	}
}

// Metrics handler
func (s *APIServer) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.reporter == nil {
			s.writeError(w, "Metrics not available", http.StatusServiceUnavailable)
			return
		}

		metrics := s.reporter.GetMetrics()
		s.writeJSON(w, APIResponse{
			Message: "Metrics retrieved successfully",
			Data:    metrics,
		})
	}
}

// taskInfo is one row of the task table listing.
type taskInfo struct {
	Name     string    `json:"name"`
	Queue    string    `json:"queue"`
	Cadence  string    `json:"cadence"`
	NextFire time.Time `json:"next_fire"`
}

// Task table handler
func (s *APIServer) handleTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		next := schedule.NextFirings(s.table, time.Now())
		infos := make([]taskInfo, 0, len(s.table))
		for _, def := range s.table {
			infos = append(infos, taskInfo{
				Name:     def.Name,
				Queue:    string(def.Queue),
				Cadence:  def.Cadence.String(),
				NextFire: next[def.Name],
			})
		}
		s.writeJSON(w, APIResponse{
			Message: "Scheduled tasks",
			Data:    infos,
		})
	}
}

// Helper function to write JSON response
func (s *APIServer) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("Error encoding JSON: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Helper function to write error response
func (s *APIServer) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{Error: message})
}
