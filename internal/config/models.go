package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/openrover/driverstation/internal/logger"
)

// VideoConfig holds the receiver settings for the incoming RTP/JPEG feed
type VideoConfig struct {
	// Port is the UDP port the stream is expected on
	Port int `json:"port" yaml:"port"`

	// BufferSize is the udpsrc socket buffer in bytes
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// QueueDepth bounds the leaky decode queue (oldest frames dropped under pressure)
	QueueDepth int `json:"queue_depth" yaml:"queue_depth"`

	// MirrorHorizontal / MirrorVertical correct the camera's native orientation.
	// The stock sender mounts the camera upside down, so both default to true.
	MirrorHorizontal bool `json:"mirror_horizontal" yaml:"mirror_horizontal"`
	MirrorVertical   bool `json:"mirror_vertical" yaml:"mirror_vertical"`

	// FrameTimeoutSec marks the stream inactive after this many seconds
	// without a frame
	FrameTimeoutSec int `json:"frame_timeout_sec" yaml:"frame_timeout_sec"`

	// PlaceholderWidth/Height size the solid frame served before any video arrives
	PlaceholderWidth  int `json:"placeholder_width" yaml:"placeholder_width"`
	PlaceholderHeight int `json:"placeholder_height" yaml:"placeholder_height"`
}

// TelemetryConfig holds the outbound drive-state service settings
type TelemetryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
}

// Config represents the application configuration
type Config struct {
	ServerPort int             `json:"server_port" yaml:"server_port"`
	LogLevel   string          `json:"log_level" yaml:"log_level"`
	Video      VideoConfig     `json:"video" yaml:"video"`
	Telemetry  TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "driverstation")
	defaultConfigPath := filepath.Join(configDir, "config.yaml")

	actualConfigPath := defaultConfigPath
	if configFile != "" {
		actualConfigPath = configFile
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = m.getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("video_port", m.config.Video.Port).
		Msg("Config loaded")

	return m, nil
}

// getDefaults returns default configuration
func (m *Manager) getDefaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Video: VideoConfig{
			Port:              5000,
			BufferSize:        200000,
			QueueDepth:        100,
			MirrorHorizontal:  true,
			MirrorVertical:    true,
			FrameTimeoutSec:   3,
			PlaceholderWidth:  640,
			PlaceholderHeight: 480,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			URL:     "ws://localhost:8887",
		},
	}
}

// load reads the configuration from disk
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	// Backfill zero values so a sparse config file still yields a usable receiver
	defaults := m.getDefaults()
	if cfg.ServerPort == 0 {
		cfg.ServerPort = defaults.ServerPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.Video.Port == 0 {
		cfg.Video.Port = defaults.Video.Port
	}
	if cfg.Video.BufferSize == 0 {
		cfg.Video.BufferSize = defaults.Video.BufferSize
	}
	if cfg.Video.QueueDepth == 0 {
		cfg.Video.QueueDepth = defaults.Video.QueueDepth
	}
	if cfg.Video.FrameTimeoutSec == 0 {
		cfg.Video.FrameTimeoutSec = defaults.Video.FrameTimeoutSec
	}
	if cfg.Video.PlaceholderWidth == 0 {
		cfg.Video.PlaceholderWidth = defaults.Video.PlaceholderWidth
	}
	if cfg.Video.PlaceholderHeight == 0 {
		cfg.Video.PlaceholderHeight = defaults.Video.PlaceholderHeight
	}
	if cfg.Telemetry.URL == "" {
		cfg.Telemetry.URL = defaults.Telemetry.URL
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()

	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return m.getDefaults()
	}

	cfg := *m.config
	return &cfg
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Update replaces the configuration and persists it
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetPort overrides the HTTP server port (not persisted)
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config != nil {
		m.config.ServerPort = port
	}
}

// SetVideoPort overrides the UDP video port (not persisted)
func (m *Manager) SetVideoPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config != nil {
		m.config.Video.Port = port
	}
}

// SetLogLevel overrides the log level (not persisted)
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config != nil {
		m.config.LogLevel = level
	}
}

// GetConfigPath returns the path of the loaded config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
