package telemetry

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/openrover/driverstation/internal/logger"
)

// DriveState is the JSON payload the vehicle's control endpoint expects
type DriveState struct {
	Angle     float64 `json:"angle"`
	Throttle  float64 `json:"throttle"`
	DriveMode string  `json:"drive_mode"`
	Recording bool    `json:"recording"`
}

// Service pushes drive state to the vehicle over a WebSocket connection.
// State changes are sent as they happen; nothing is sent while disconnected.
type Service struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	state     DriveState
	log       *zerolog.Logger
}

// NewService creates a disconnected telemetry service
func NewService() *Service {
	return &Service{
		state: DriveState{DriveMode: "user"},
		log:   logger.WithComponent("telemetry"),
	}
}

// Connect dials the WebSocket server and sends the current state
func (s *Service) Connect(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected to telemetry server")
	}

	s.log.Info().Str("url", url).Msg("Connecting to telemetry server")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	s.conn = conn
	s.connected = true

	// Drain incoming control frames; a read error means the peer went away
	go s.readLoop(conn)

	if err := s.sendLocked(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to send initial drive state")
	}

	return nil
}

// Disconnect closes the connection. Safe to call when not connected.
func (s *Service) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// IsConnected reports whether the service has a live connection
func (s *Service) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// State returns the current drive state
func (s *Service) State() DriveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update stores new axis values and sends them when they changed and a
// connection is up
func (s *Service) Update(angle, throttle float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Angle == angle && s.state.Throttle == throttle {
		return nil
	}
	s.state.Angle = angle
	s.state.Throttle = throttle

	if !s.connected {
		return nil
	}
	return s.sendLocked()
}

func (s *Service) sendLocked() error {
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := s.conn.WriteJSON(s.state); err != nil {
		s.log.Warn().Err(err).Msg("Telemetry write failed")
		s.closeLocked()
		return fmt.Errorf("failed to send drive state: %w", err)
	}
	return nil
}

func (s *Service) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.log.Info().Msg("Telemetry connection closed by peer")
				s.closeLocked()
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Service) closeLocked() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}
