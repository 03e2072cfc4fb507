package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Pinger reports store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer provides HTTP health check and metrics endpoints for the scheduler.
type HealthServer struct {
	addr    string
	store   Pinger
	metrics *Metrics
	server  *http.Server
}

// NewHealthServer creates a new health check server. metrics may be nil.
func NewHealthServer(addr string, store Pinger, metrics *Metrics) *HealthServer {
	return &HealthServer{
		addr:    addr,
		store:   store,
		metrics: metrics,
	}
}

// Handler returns the routes served by the health server.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
	}
	return mux
}

// Start starts the HTTP server in the background.
func (h *HealthServer) Start() error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Scheduler] Health server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if Redis is accessible, 503 Service Unavailable otherwise.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Redis:  "connected",
	}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Redis = "disconnected"
		response.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis,omitempty"`
	Error  string `json:"error,omitempty"`
}
