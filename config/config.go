package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all client configuration
type Config struct {
	AgentURL        string        `yaml:"agent_url"`
	RequestTimeout  time.Duration `yaml:"-"`
	ServerType      string        `yaml:"server_type"` // "terminal" or "websocket"
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxSessions     int           `yaml:"max_sessions"`
	KeepAlivePeriod time.Duration `yaml:"-"`
	SessionTimeout  time.Duration `yaml:"-"`               // idle WebSocket pages are closed after this
	StorageBackend  string        `yaml:"storage_backend"` // "file", "redis" or "memory"
	StoragePath     string        `yaml:"storage_path"`
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	RecordCommand   string        `yaml:"record_command"`
	RecordFile      string        `yaml:"record_file"` // replay this file instead of the microphone
	PlaybackCommand string        `yaml:"playback_command"`
	MaxBufferSize   int           `yaml:"max_buffer_size"` // Maximum recorded audio in bytes per turn
	MetricsEnabled  bool          `yaml:"metrics_enabled"`

	// Seconds, YAML only. Environment overrides use REQUEST_TIMEOUT / KEEPALIVE_PERIOD.
	RequestTimeoutSeconds  int `yaml:"request_timeout"`
	KeepAlivePeriodSeconds int `yaml:"keepalive_period"`
	SessionTimeoutMinutes  int `yaml:"session_timeout"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		AgentURL:        "http://localhost:8000",
		RequestTimeout:  60 * time.Second,
		ServerType:      "terminal",
		Port:            8080,
		AllowedOrigins:  []string{"*"},
		MaxSessions:     10,
		KeepAlivePeriod: 30 * time.Second,
		SessionTimeout:  30 * time.Minute,
		StorageBackend:  "file",
		StoragePath:     defaultStoragePath(),
		RedisURL:        "localhost:6379",
		RecordCommand:   "sox -d -q -t wav -",
		PlaybackCommand: "sox -q -t mp3 - -d",
		MaxBufferSize:   5 * 1024 * 1024, // 5MB default
		MetricsEnabled:  true,
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".leadchat/storage.json"
	}
	return filepath.Join(home, ".leadchat", "storage.json")
}

// LoadConfig loads configuration from an optional YAML file and environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := Default()

	// Optional: CONFIG_FILE (YAML), applied before the environment
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if c.RequestTimeoutSeconds > 0 {
		c.RequestTimeout = time.Duration(c.RequestTimeoutSeconds) * time.Second
	}
	if c.KeepAlivePeriodSeconds > 0 {
		c.KeepAlivePeriod = time.Duration(c.KeepAlivePeriodSeconds) * time.Second
	}
	if c.SessionTimeoutMinutes > 0 {
		c.SessionTimeout = time.Duration(c.SessionTimeoutMinutes) * time.Minute
	}
	return nil
}

func (c *Config) applyEnv() error {
	// Optional: AGENT_URL
	if agentURL := os.Getenv("AGENT_URL"); agentURL != "" {
		c.AgentURL = strings.TrimRight(agentURL, "/")
	}

	// Optional: REQUEST_TIMEOUT (in seconds)
	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = time.Duration(t) * time.Second
	}

	// Optional: SERVER_TYPE ("terminal" or "websocket")
	if serverType := os.Getenv("SERVER_TYPE"); serverType != "" {
		c.ServerType = serverType
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Port = p
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: MAX_SESSIONS
	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		c.MaxSessions = m
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		c.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		c.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: STORAGE_BACKEND, STORAGE_PATH
	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		c.StorageBackend = backend
	}
	if path := os.Getenv("STORAGE_PATH"); path != "" {
		c.StoragePath = path
	}

	// Optional: REDIS_URL, REDIS_PASSWORD
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.RedisURL = redisURL
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.RedisPassword = redisPassword
	}

	// Optional: audio commands
	if cmd := os.Getenv("RECORD_COMMAND"); cmd != "" {
		c.RecordCommand = cmd
	}
	if file := os.Getenv("RECORD_FILE"); file != "" {
		c.RecordFile = file
	}
	if cmd := os.Getenv("PLAYBACK_COMMAND"); cmd != "" {
		c.PlaybackCommand = cmd
	}

	// Optional: MAX_BUFFER_SIZE (in bytes)
	if bufferSize := os.Getenv("MAX_BUFFER_SIZE"); bufferSize != "" {
		b, err := strconv.Atoi(bufferSize)
		if err != nil {
			return fmt.Errorf("invalid MAX_BUFFER_SIZE: %w", err)
		}
		c.MaxBufferSize = b
	}

	// Optional: METRICS_ENABLED
	if metrics := os.Getenv("METRICS_ENABLED"); metrics != "" {
		m, err := strconv.ParseBool(metrics)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED: %w", err)
		}
		c.MetricsEnabled = m
	}

	return nil
}

// Validate checks enumerated and bounded fields
func (c *Config) Validate() error {
	switch c.ServerType {
	case "terminal", "websocket":
	default:
		return fmt.Errorf("invalid SERVER_TYPE: must be 'terminal' or 'websocket'")
	}

	switch c.StorageBackend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: must be 'file', 'redis' or 'memory'")
	}

	if c.AgentURL == "" {
		return fmt.Errorf("AGENT_URL must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid REQUEST_TIMEOUT: must be positive")
	}
	if c.MaxBufferSize <= 0 {
		return fmt.Errorf("invalid MAX_BUFFER_SIZE: must be positive")
	}
	if c.KeepAlivePeriod <= 0 {
		return fmt.Errorf("invalid KEEPALIVE_PERIOD: must be positive")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("invalid SESSION_TIMEOUT: must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("invalid MAX_SESSIONS: must be positive")
	}
	return nil
}

// ChatURL returns the agent's chat endpoint
func (c *Config) ChatURL() string {
	return strings.TrimRight(c.AgentURL, "/") + "/chat/"
}
