package main

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/voicepage/kwsbench/internal/config"
	"github.com/voicepage/kwsbench/internal/events"
	"github.com/voicepage/kwsbench/internal/jobs"
	"github.com/voicepage/kwsbench/internal/kws"
	"github.com/voicepage/kwsbench/internal/model"
	"github.com/voicepage/kwsbench/internal/notify"
	"github.com/voicepage/kwsbench/internal/report"
	"github.com/voicepage/kwsbench/internal/server"
	"github.com/voicepage/kwsbench/internal/types"
)

// Server is the HTTP and WebSocket front end of the benchmark service.
type Server struct {
	config    *config.Config
	runtime   *model.Runtime
	evaluator *kws.Evaluator
	jobs      *jobs.Manager
	notifier  *notify.BenchNotifier
	events    *events.Logger
	version   *VersionChecker

	// reportMu guards the last evaluation report kept for export.
	reportMu   sync.Mutex
	lastReport *report.Report

	// wsMu guards the connected WebSocket clients.
	wsMu      sync.Mutex
	wsClients map[chan any]struct{}
}

// NewServer wires the service components into an HTTP server.
func NewServer(cfg *config.Config, rt *model.Runtime, mgr *jobs.Manager, notifier *notify.BenchNotifier, evlog *events.Logger) *Server {
	snap := cfg.Snapshot()
	evaluator := kws.NewEvaluator(rt)
	evaluator.ToleranceMs = snap.ToleranceMs
	evaluator.Workers = snap.Workers

	return &Server{
		config:    cfg,
		runtime:   rt,
		evaluator: evaluator,
		jobs:      mgr,
		notifier:  notifier,
		events:    evlog,
		version:   NewVersionChecker(),
		wsClients: make(map[chan any]struct{}),
	}
}

// SetupRoutes returns an [http.Handler] configured with all API routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := s.apiKeyAuth

	// Read-only routes
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/configs", s.handleConfigs)
	mux.HandleFunc("GET /api/datasets", s.handleDatasets)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	// Mutating routes (API key auth)
	mux.HandleFunc("POST /api/models/reload", auth(s.handleReloadModels))
	mux.HandleFunc("POST /api/evaluate", auth(s.handleEvaluate))
	mux.HandleFunc("POST /api/evaluate/quick", auth(s.handleQuickEvaluate))
	mux.HandleFunc("POST /api/evaluate/sweep", auth(s.handleSweep))
	mux.HandleFunc("POST /api/jobs", auth(s.handleCreateJob))
	mux.HandleFunc("DELETE /api/datasets/{keyword}", auth(s.handleDeleteDataset))
	mux.HandleFunc("POST /api/reports/upload", auth(s.handleReportUpload))
	mux.HandleFunc("POST /api/reports/test-s3", auth(s.handleTestS3))
	mux.HandleFunc("POST /api/notify/test/{channel}", auth(s.handleNotifyTest))
	mux.HandleFunc("POST /api/regenerate-key", auth(s.handleRegenerateKey))
	mux.HandleFunc("PUT /api/settings/notifications/webhook", auth(s.handleWebhookSettings))
	mux.HandleFunc("PUT /api/settings/notifications/log", auth(s.handleLogSettings))
	mux.HandleFunc("PUT /api/settings/notifications/email", auth(s.handleEmailSettings))
	mux.HandleFunc("PUT /api/settings/report", auth(s.handleReportSettings))

	// Live updates
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return corsHeaders(securityHeaders(mux))
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// corsHeaders opens the JSON API to browser dashboards on other origins and
// answers preflight requests.
func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// apiKeyAuth returns middleware for API key authentication.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.APIKey()
		if apiKey == "" {
			http.Error(w, "API key not configured", http.StatusServiceUnavailable)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// wsStatus is the periodic status frame pushed to WebSocket clients.
type wsStatus struct {
	Type        string            `json:"type"`
	ModelsReady bool              `json:"models_ready"`
	Keywords    []string          `json:"keywords"`
	ActiveJob   *types.Job        `json:"active_job,omitempty"`
	Threshold   float64           `json:"threshold"`
	ToleranceMs float64           `json:"tolerance_ms"`
	Platform    string            `json:"platform"`
	Version     types.VersionInfo `json:"version"`
}

// wsJobUpdate is pushed whenever a job changes.
type wsJobUpdate struct {
	Type string    `json:"type"`
	Job  types.Job `json:"job"`
}

// buildWSStatus returns the current WebSocket status frame.
func (s *Server) buildWSStatus() wsStatus {
	cfg := s.config.Snapshot()
	status := wsStatus{
		Type:        "status",
		ModelsReady: s.runtime.Ready(),
		Keywords:    s.runtime.AvailableKeywords(),
		Threshold:   cfg.Threshold,
		ToleranceMs: cfg.ToleranceMs,
		Platform:    runtime.GOOS,
		Version:     s.version.Info(),
	}
	if job, ok := s.jobs.Active(); ok {
		status.ActiveJob = &job
	}
	return status
}

// BroadcastJob pushes a job update to all connected WebSocket clients.
// Wired as jobs.Manager.OnUpdate.
func (s *Server) BroadcastJob(job types.Job) {
	update := wsJobUpdate{Type: "job", Job: job}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for send := range s.wsClients {
		select {
		case send <- update:
		default:
			// Slow client; it still gets the next status tick.
		}
	}
}

// handleWebSocket handles WebSocket connections for live status and job updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 16)
	done := make(chan struct{})

	s.wsMu.Lock()
	s.wsClients[send] = struct{}{}
	s.wsMu.Unlock()

	// Writer goroutine - sole writer to the connection
	go s.runWebSocketWriter(conn, send)

	// Reader goroutine - detects client disconnect
	go s.runWebSocketReader(conn, done)

	s.runWebSocketEventLoop(send, done)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads from the connection until it closes.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, done chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
	}
}

// runWebSocketEventLoop pushes periodic status frames until the client leaves.
func (s *Server) runWebSocketEventLoop(send chan any, done <-chan struct{}) {
	statusTicker := time.NewTicker(3000 * time.Millisecond)
	defer statusTicker.Stop()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsClients, send)
		s.wsMu.Unlock()
		close(send)
	}()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				return
			}
		}
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().Port)
	slog.Info("starting API server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
