package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Location provider names.
const (
	LocationPush = "push"
	LocationMock = "mock"
)

// Config holds the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Audio    AudioConfig    `yaml:"audio"`
	Request  RequestConfig  `yaml:"request"`
	Location LocationConfig `yaml:"location"`
	Tour     TourConfig     `yaml:"tour"`
}

// LogConfig holds settings for the different log files.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds path and level for a specific log.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address        string `yaml:"address"`
	MaxConnections int    `yaml:"max_connections"` // 0 = unlimited
}

// EngineConfig holds narration engine settings.
type EngineConfig struct {
	Threshold      Distance `yaml:"threshold"`       // Radius in which a POI becomes eligible
	ExitThreshold  Distance `yaml:"exit_threshold"`  // Radius at which the active POI is left; 0 = same as threshold
	StatusInterval Duration `yaml:"status_interval"` // Playback status cadence while playing
	Fade           Duration `yaml:"fade"`            // Volume ramp on play/pause
}

// AudioConfig holds audio output settings.
type AudioConfig struct {
	CacheDir string  `yaml:"cache_dir"`
	Volume   float64 `yaml:"volume"`
}

// RequestConfig holds settings for clip downloads.
type RequestConfig struct {
	Timeout Duration      `yaml:"timeout"`
	Retries int           `yaml:"retries"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds retry delays for the request client.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LocationConfig selects where location samples come from.
type LocationConfig struct {
	Provider string         `yaml:"provider"`
	Mock     MockWalkConfig `yaml:"mock"`

	// A jump farther than this between two samples starts a new session.
	JumpThreshold Distance `yaml:"jump_threshold"`
}

// MockWalkConfig configures the simulated walk.
type MockWalkConfig struct {
	Route    []Waypoint `yaml:"route"`
	Speed    float64    `yaml:"speed"` // m/s
	Interval Duration   `yaml:"interval"`
	Loop     bool       `yaml:"loop"`
}

// Waypoint is a single coordinate on the mock route.
type Waypoint struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// TourConfig configures the POI catalogue.
type TourConfig struct {
	GeoJSON         string   `yaml:"geojson"` // Seed file imported on first start; empty = none
	Radius          Distance `yaml:"radius"`
	RefreshDistance Distance `yaml:"refresh_distance"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	WatchInterval   Duration `yaml:"watch_interval"` // Poll for edits to the seed file; 0 = off
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server:   LogSettings{Path: "logs/server.log", Level: "INFO"},
			Requests: LogSettings{Path: "logs/requests.log", Level: "INFO"},
			Events:   LogSettings{Path: "logs/events.log"},
		},
		DB: DBConfig{
			Path: "data/tourguide.db",
		},
		Server: ServerConfig{
			Address:        "localhost:8088",
			MaxConnections: 64,
		},
		Engine: EngineConfig{
			Threshold:      Distance(50),
			StatusInterval: Duration(250 * time.Millisecond),
			Fade:           Duration(150 * time.Millisecond),
		},
		Audio: AudioConfig{
			CacheDir: "data/clips",
			Volume:   1.0,
		},
		Request: RequestConfig{
			Timeout: Duration(60 * time.Second),
			Retries: 2,
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(10 * time.Second),
			},
		},
		Location: LocationConfig{
			Provider: LocationPush,
			Mock: MockWalkConfig{
				Route: []Waypoint{
					{Lat: 41.8902, Lon: 12.4922}, // Colosseum
					{Lat: 41.8925, Lon: 12.4853}, // Forum
					{Lat: 41.8986, Lon: 12.4769}, // Pantheon
				},
				Speed:    1.4,
				Interval: Duration(1 * time.Second),
				Loop:     true,
			},
			JumpThreshold: Distance(20000),
		},
		Tour: TourConfig{
			Radius:          Distance(2000),
			RefreshDistance: Distance(500),
			RefreshInterval: Duration(5 * time.Minute),
			WatchInterval:   Duration(10 * time.Second),
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Existing files are merged over the defaults but never written back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the environment (or a .env file) override deployment-specific values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TOURGUIDE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("TOURGUIDE_DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("TOURGUIDE_LOCATION_PROVIDER"); v != "" {
		cfg.Location.Provider = v
	}
	if v := os.Getenv("TOURGUIDE_AUDIO_CACHE_DIR"); v != "" {
		cfg.Audio.CacheDir = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("engine.threshold must be positive, got %v", float64(c.Engine.Threshold)))
	}
	if c.Engine.ExitThreshold < 0 {
		errs = append(errs, fmt.Errorf("engine.exit_threshold must not be negative"))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio.volume must be within [0, 1], got %v", c.Audio.Volume))
	}
	switch c.Location.Provider {
	case LocationPush:
	case LocationMock:
		if len(c.Location.Mock.Route) == 0 {
			errs = append(errs, errors.New("location.mock.route must contain at least one waypoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown location.provider %q", c.Location.Provider))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Tourguide Configuration
# ----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), ft (feet)

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: push, mock\n${1}provider:"))

	reExit := regexp.MustCompile(`(?m)^(\s+)exit_threshold:`)
	data = reExit.ReplaceAll(data, []byte("${1}# Set above threshold to add hysteresis\n${1}exit_threshold:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
