package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BackendBaseURL  string        `yaml:"backend_base_url"`
	BackendProxyURL string        `yaml:"backend_proxy_url"`
	AccessToken     string        `yaml:"access_token"`
	ListenAddr      string        `yaml:"listen_addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	// Streaming
	TurnTimeout     time.Duration `yaml:"turn_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CancelGrace     time.Duration `yaml:"cancel_grace"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	MaxMessageRunes int           `yaml:"max_message_runes"`
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// A2A
	A2AEnabled bool   `yaml:"a2a_enabled"`
	A2APort    int    `yaml:"a2a_port"`
	AgentName  string `yaml:"agent_name"`
	AgentDesc  string `yaml:"agent_desc"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BackendBaseURL:  "http://localhost:8000/api",
		ListenAddr:      ":8080",
		RequestTimeout:  30 * time.Second,
		TurnTimeout:     5 * time.Minute,
		IdleTimeout:     30 * time.Second,
		CancelGrace:     2 * time.Second,
		ReadBufferSize:  1024,
		MaxMessageRunes: 4000,
		LogLevel:        "info",
		LogFormat:       "text",
		A2APort:         8000,
		AgentName:       "admin-chat",
		AgentDesc:       "Administrative assistant chat exposed via A2A protocol",
	}
}

// Load builds the configuration in increasing precedence: defaults, the
// YAML file at path (if any), a .env file in the working directory, the
// process environment. Flags registered with RegisterFlags are applied on
// top by the flag parser.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.BackendBaseURL = getEnv("BACKEND_BASE_URL", c.BackendBaseURL)
	c.BackendProxyURL = getEnv("BACKEND_PROXY_URL", c.BackendProxyURL)
	c.AccessToken = getEnv("ACCESS_TOKEN", c.AccessToken)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.TurnTimeout = getEnvDuration("TURN_TIMEOUT", c.TurnTimeout)
	c.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.CancelGrace = getEnvDuration("CANCEL_GRACE", c.CancelGrace)
	c.ReadBufferSize = getEnvInt("READ_BUFFER_SIZE", c.ReadBufferSize)
	c.MaxMessageRunes = getEnvInt("MAX_MESSAGE_RUNES", c.MaxMessageRunes)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.A2AEnabled = getEnvBool("A2A_ENABLED", c.A2AEnabled)
	c.A2APort = getEnvInt("A2A_PORT", c.A2APort)
	c.AgentName = getEnv("AGENT_NAME", c.AgentName)
	c.AgentDesc = getEnv("AGENT_DESC", c.AgentDesc)
}

// RegisterFlags binds c's fields to fs, using the current values as defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.BackendBaseURL, "backend-base-url", c.BackendBaseURL, "Admin backend base URL")
	fs.StringVar(&c.BackendProxyURL, "backend-proxy-url", c.BackendProxyURL, "HTTP/HTTPS proxy URL for backend requests")
	fs.StringVar(&c.AccessToken, "access-token", c.AccessToken, "Bearer token used when a caller does not supply one")
	fs.StringVar(&c.ListenAddr, "listen-addr", c.ListenAddr, "Gateway listen address")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Timeout for non-streaming backend calls and response headers")
	fs.DurationVar(&c.TurnTimeout, "turn-timeout", c.TurnTimeout, "Upper bound on one chat turn")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "Fail a turn when no reply bytes arrive for this long")
	fs.DurationVar(&c.CancelGrace, "cancel-grace", c.CancelGrace, "Longest an in-flight read may delay cancellation")
	fs.IntVar(&c.ReadBufferSize, "read-buffer-size", c.ReadBufferSize, "Bytes per read of a reply stream")
	fs.IntVar(&c.MaxMessageRunes, "max-message-runes", c.MaxMessageRunes, "Maximum message length in characters")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (text, json)")
	fs.BoolVar(&c.A2AEnabled, "a2a", c.A2AEnabled, "Enable A2A server alongside the gateway")
	fs.IntVar(&c.A2APort, "a2a-port", c.A2APort, "A2A server listen port")
	fs.StringVar(&c.AgentName, "agent-name", c.AgentName, "A2A AgentCard name")
	fs.StringVar(&c.AgentDesc, "agent-desc", c.AgentDesc, "A2A AgentCard description")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend base URL %q must be an absolute http(s) URL", c.BackendBaseURL)
	}
	if c.BackendProxyURL != "" {
		if _, err := url.Parse(c.BackendProxyURL); err != nil {
			return fmt.Errorf("backend proxy URL: %w", err)
		}
	}
	for name, d := range map[string]time.Duration{
		"request timeout": c.RequestTimeout,
		"turn timeout":    c.TurnTimeout,
		"cancel grace":    c.CancelGrace,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout)
	}
	if c.ReadBufferSize < 4 || c.ReadBufferSize > 64<<10 {
		return fmt.Errorf("read buffer size must be between 4 and %d, got %d", 64<<10, c.ReadBufferSize)
	}
	if c.MaxMessageRunes <= 0 {
		return fmt.Errorf("max message runes must be positive, got %d", c.MaxMessageRunes)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.A2AEnabled && (c.A2APort <= 0 || c.A2APort > 65535) {
		return fmt.Errorf("invalid A2A port %d", c.A2APort)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}
