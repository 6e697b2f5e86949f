package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/openrover/driverstation/internal/config"
	"github.com/openrover/driverstation/internal/logger"
	"github.com/openrover/driverstation/internal/receiver"
	"github.com/openrover/driverstation/internal/telemetry"
)

// StreamController is the receiver surface the API exposes. Any receiver
// implementation with lifecycle control and a pull-based frame accessor fits.
type StreamController interface {
	StartStream(port int)
	StopStream()
	Status() receiver.Status
	Frame() *receiver.Frame
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	stream    StreamController
	configMgr *config.Manager
	telemetry *telemetry.Service
	upgrader  websocket.Upgrader

	// Status subscribers (WebSocket push)
	subsMu sync.Mutex
	subs   map[chan receiver.Status]struct{}
}

// NewServer creates a new API server. telemetrySvc may be nil when the
// telemetry service is disabled.
func NewServer(stream StreamController, configMgr *config.Manager, telemetrySvc *telemetry.Service) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		stream:    stream,
		configMgr: configMgr,
		telemetry: telemetrySvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subs: make(map[chan receiver.Status]struct{}),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Stream lifecycle and state
	api.HandleFunc("/stream/status", s.handleStreamStatus).Methods("GET")
	api.HandleFunc("/stream/start", s.handleStreamStart).Methods("POST")
	api.HandleFunc("/stream/stop", s.handleStreamStop).Methods("POST")
	api.HandleFunc("/stream/events", s.handleStreamEvents)

	// Drive state (forwarded to the vehicle when telemetry is connected)
	api.HandleFunc("/drive", s.handleGetDrive).Methods("GET")
	api.HandleFunc("/drive", s.handleUpdateDrive).Methods("POST")

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Router returns the underlying router so extra handlers (the MJPEG stream,
// snapshots) can be mounted next to the API
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting HTTP server")
	return http.ListenAndServe(addr, s.enableCORS(s.router))
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// PublishStatus fans a status change out to all WebSocket subscribers. Wired
// to the receiver's status notification; slow subscribers skip updates.
func (s *Server) PublishStatus(status receiver.Status) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- status:
		default:
		}
	}
}

// HTTP Handlers

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.stream.Status())
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Port *int `json:"port"`
	}
	if r.Body != nil {
		// An empty body means "use the configured port"
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	port := s.configMgr.Get().Video.Port
	if req.Port != nil {
		port = *req.Port
	}
	if port < 0 || port > 65535 {
		http.Error(w, fmt.Sprintf("invalid port %d", port), http.StatusBadRequest)
		return
	}

	s.stream.StartStream(port)
	writeJSON(w, s.stream.Status())
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	s.stream.StopStream()
	writeJSON(w, s.stream.Status())
}

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.subscribe()
	defer s.unsubscribe(updates)

	// Send current state first so subscribers need no separate GET
	if err := conn.WriteJSON(s.stream.Status()); err != nil {
		return
	}

	// Reader goroutine detects client disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case status := <-updates:
			if err := conn.WriteJSON(status); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) handleGetDrive(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		http.Error(w, "telemetry disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, struct {
		telemetry.DriveState
		Connected bool `json:"connected"`
	}{s.telemetry.State(), s.telemetry.IsConnected()})
}

func (s *Server) handleUpdateDrive(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		http.Error(w, "telemetry disabled", http.StatusNotFound)
		return
	}

	var req struct {
		Angle    float64 `json:"angle"`
		Throttle float64 `json:"throttle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Angle < -1 || req.Angle > 1 || req.Throttle < -1 || req.Throttle > 1 {
		http.Error(w, "angle and throttle must be in [-1, 1]", http.StatusBadRequest)
		return
	}

	if err := s.telemetry.Update(req.Angle, req.Throttle); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, s.telemetry.State())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) subscribe() chan receiver.Status {
	ch := make(chan receiver.Status, 4)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan receiver.Status) {
	s.subsMu.Lock()
	delete(s.subs, ch)
	s.subsMu.Unlock()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
