package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the response from health endpoints. DocumentsLoaded is
// the size of the knowledge collection.
type HealthResponse struct {
	Status          HealthStatus  `json:"status"`
	DocumentsLoaded int           `json:"documents_loaded"`
	Timestamp       time.Time     `json:"timestamp"`
	Version         string        `json:"version,omitempty"`
	Checks          []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

// DocumentCounter reports the number of knowledge documents stored.
type DocumentCounter func(ctx context.Context) (int, error)

// HealthServer serves the health, readiness and liveness endpoints.
type HealthServer struct {
	mu        sync.RWMutex
	checks    map[string]HealthChecker
	version   string
	documents DocumentCounter
	ready     bool
	live      bool
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Version   string
	Documents DocumentCounter
}

// NewHealthServer creates a new health server.
func NewHealthServer(config *HealthConfig) *HealthServer {
	s := &HealthServer{
		checks: make(map[string]HealthChecker),
		live:   true,
	}
	if config != nil {
		s.version = config.Version
		s.documents = config.Documents
	}
	return s
}

// RegisterCheck adds a health check.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// SetReady marks the server as ready to accept traffic.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Ready reports whether the server accepts traffic.
func (s *HealthServer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// SetLive marks the server as live (or not).
func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Mount registers the health endpoints on r.
func (s *HealthServer) Mount(r chi.Router) {
	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	r.Get("/healthz", s.handleHealth) // Kubernetes alias
	r.Get("/readyz", s.handleReady)   // Kubernetes alias
	r.Get("/livez", s.handleLive)     // Kubernetes alias
}

// Handler returns an http.Handler for the health endpoints alone.
func (s *HealthServer) Handler() http.Handler {
	r := chi.NewRouter()
	s.Mount(r)
	return r
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	checks := make(map[string]HealthChecker, len(s.checks))
	for k, v := range s.checks {
		names = append(names, k)
		checks[k] = v
	}
	version := s.version
	documents := s.documents
	s.mu.RUnlock()
	sort.Strings(names)

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)+1),
	}

	if documents != nil {
		n, err := documents(ctx)
		check := HealthCheck{Name: "knowledge_base", Status: HealthStatusHealthy}
		if err != nil {
			check.Status = HealthStatusUnhealthy
			check.Message = "vector store unreachable: " + err.Error()
		} else if n == 0 {
			check.Status = HealthStatusDegraded
			check.Message = "knowledge base is empty"
		}
		response.DocumentsLoaded = n
		response.Checks = append(response.Checks, check)
	}

	for _, name := range names {
		check := checks[name](ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)
	}

	for _, check := range response.Checks {
		if check.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy {
			response.Status = HealthStatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	s.probe(w, s.Ready())
}

func (s *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	live := s.live
	s.mu.RUnlock()
	s.probe(w, live)
}

func (s *HealthServer) probe(w http.ResponseWriter, ok bool) {
	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
	}
	if !ok {
		response.Status = HealthStatusUnhealthy
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// backendChecker degrades health when checkFn fails. Optional backends never
// make the service unhealthy.
func backendChecker(component string, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{Status: HealthStatusDegraded, Message: component + ": " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: component + " OK"}
	}
}

// TemporalHealthChecker checks the Temporal frontend. Async ingestion stops
// while it is down; synchronous ingestion does not.
func TemporalHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return backendChecker("temporal (async ingestion)", checkFn)
}

// GraphHealthChecker checks the clinical graph.
func GraphHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return backendChecker("clinical graph", checkFn)
}

// CacheHealthChecker checks the embedding cache.
func CacheHealthChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return backendChecker("embedding cache", checkFn)
}

// LLMHealthChecker reports the configured language model. An empty provider
// name means no credential: insights fall back and questions fail.
func LLMHealthChecker(providerName string) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if providerName == "" {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "no language model configured, insights use the local fallback",
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "LLM provider configured: " + providerName,
			Details: map[string]string{"provider": providerName},
		}
	}
}
