package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, also read from a .env file in the working directory.
const (
	EnvBaseURL        = "MEETINGMIND_BASE_URL"
	EnvAPIPrefix      = "MEETINGMIND_API_PREFIX"
	EnvStreamPath     = "MEETINGMIND_STREAM_PATH"
	EnvLogLevel       = "MEETINGMIND_LOG_LEVEL"
	EnvMetricsAddress = "MEETINGMIND_METRICS_ADDRESS"

	dotEnvFile = ".env"
)

// Defaults for the consumed server paths.
const (
	DefaultBaseURL    = "http://localhost:9528"
	DefaultAPIPrefix  = "/api/v1"
	DefaultStreamPath = "/api/v1/ws"
)

// Path is the location of the YAML config file.
type Path string

// ServerConfig locates the REST collection and the streaming endpoint.
type ServerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIPrefix      string        `yaml:"api_prefix"`
	StreamPath     string        `yaml:"stream_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// WriteTimeout bounds every websocket write, including waiting for the previous one.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AudioConfig stores capture and encoding settings.
type AudioConfig struct {
	Gain             float64 `yaml:"gain"`
	FileGain         float64 `yaml:"file_gain"`
	DeviceName       string  `yaml:"device_name"`
	FramesPerBuffer  int     `yaml:"frames_per_buffer"`
	EchoCancellation bool    `yaml:"echo_cancellation"`
	NoiseSuppression bool    `yaml:"noise_suppression"`
	AutoGainControl  bool    `yaml:"auto_gain_control"`
	RecordDir        string  `yaml:"record_dir"`
}

// SessionConfig stores session defaults and pacing.
type SessionConfig struct {
	Title               string        `yaml:"title"`
	Participants        []string      `yaml:"participants"`
	Confidential        bool          `yaml:"confidential"`
	UploadChunkBytes    int           `yaml:"upload_chunk_bytes"`
	UploadInterval      time.Duration `yaml:"upload_interval"`
	StopTransitionDelay time.Duration `yaml:"stop_transition_delay"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	HistorySize         int           `yaml:"history_size"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Config stores the application configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Audio    AudioConfig   `yaml:"audio"`
	Session  SessionConfig `yaml:"session"`
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        DefaultBaseURL,
			APIPrefix:      DefaultAPIPrefix,
			StreamPath:     DefaultStreamPath,
			RequestTimeout: 10 * time.Second,
			WriteTimeout:   5 * time.Second,
		},
		Audio: AudioConfig{
			Gain:             5.0,
			FileGain:         1.0,
			FramesPerBuffer:  1024,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
		Session: SessionConfig{
			Title:               "Untitled meeting",
			UploadChunkBytes:    3200,
			UploadInterval:      100 * time.Millisecond,
			StopTransitionDelay: 500 * time.Millisecond,
			TickInterval:        time.Second,
			HistorySize:         20,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		LogLevel: "info",
	}
}

// LoadConfig loads the configuration from the given file path on top of Default,
// then applies .env and environment overrides. A missing file is not an error.
func LoadConfig(path Path) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(string(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		EnvBaseURL:        &c.Server.BaseURL,
		EnvAPIPrefix:      &c.Server.APIPrefix,
		EnvStreamPath:     &c.Server.StreamPath,
		EnvLogLevel:       &c.LogLevel,
		EnvMetricsAddress: &c.Metrics.Address,
	}
	for key, dst := range overrides {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", s.BaseURL)
	}
	if !strings.HasPrefix(s.APIPrefix, "/") {
		return fmt.Errorf("api_prefix must start with /, got %q", s.APIPrefix)
	}
	if !strings.HasPrefix(s.StreamPath, "/") && !isWebSocketURL(s.StreamPath) {
		return fmt.Errorf("stream_path must be a path or a ws(s) URL, got %q", s.StreamPath)
	}
	if s.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		return errors.New("write_timeout must be positive")
	}

	return nil
}

func (a *AudioConfig) Validate() error {
	if a.Gain <= 0 || a.FileGain <= 0 {
		return errors.New("gain and file_gain must be positive")
	}
	if a.FramesPerBuffer <= 0 {
		return errors.New("frames_per_buffer must be positive")
	}

	return nil
}

func (s *SessionConfig) Validate() error {
	if s.UploadChunkBytes <= 0 || s.UploadChunkBytes%2 != 0 {
		return fmt.Errorf("upload_chunk_bytes must be a positive even number, got %d", s.UploadChunkBytes)
	}
	if s.UploadInterval <= 0 || s.TickInterval <= 0 {
		return errors.New("upload_interval and tick_interval must be positive")
	}
	if s.StopTransitionDelay < 0 {
		return errors.New("stop_transition_delay must not be negative")
	}

	return nil
}

// APIURL joins the REST base with the API prefix and the given path elements.
func (s *ServerConfig) APIURL(elem ...string) (string, error) {
	return url.JoinPath(s.BaseURL, append([]string{s.APIPrefix}, elem...)...)
}

// StreamURL returns the websocket URL, deriving ws/wss from base_url when stream_path is a bare path.
func (s *ServerConfig) StreamURL() (string, error) {
	if isWebSocketURL(s.StreamPath) {
		return s.StreamPath, nil
	}

	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	return u.JoinPath(s.StreamPath).String(), nil
}

func isWebSocketURL(s string) bool {
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}
