// Package config handles command-line parsing and TOML configuration loading.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/gemini-lite/config.toml",
	"configs/config.toml",
}

// Modes select which server the process runs.
const (
	ModeServe = "serve"
	ModeProxy = "proxy"
	ModeFetch = "fetch"
)

// Default listen ports per mode.
const (
	DefaultServePort = 1958
	DefaultProxyPort = 1959
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	Serve ServeCmd `kong:"cmd,help='Serve files from a directory.'"`
	Proxy ProxyCmd `kong:"cmd,help='Run a forwarding proxy.'"`
	Fetch FetchCmd `kong:"cmd,help='Fetch a resource and print its body.'"`

	// Mode is the selected subcommand, set after parsing.
	Mode string `kong:"-"`
}

// ServeCmd holds arguments of the serve subcommand.
type ServeCmd struct {
	Root string `kong:"arg,optional,help='Directory to serve (overrides config).'"`
	Host string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
}

// ProxyCmd holds arguments of the proxy subcommand.
type ProxyCmd struct {
	Host string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
}

// FetchCmd holds arguments of the fetch subcommand.
type FetchCmd struct {
	URL   string  `kong:"arg,help='gemini-lite:// URL to fetch.'"`
	Input *string `kong:"arg,optional,help='Answer to an input prompt.'"`
	Proxy string  `kong:"help='Proxy host:port to connect through (overrides config).',env='GEMINI_LITE_PROXY'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Files   FilesConfig   `toml:"files"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Client  ClientConfig  `toml:"client"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	Mode string `toml:"-"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds connection server settings.
type ServerConfig struct {
	Host                 string          `toml:"host"`
	Port                 int             `toml:"port"` // 0 means the mode's default port
	Workers              int             `toml:"workers"`
	IdleTimeoutSeconds   int             `toml:"idle_timeout_seconds"`
	ShutdownGraceSeconds int             `toml:"shutdown_grace_seconds"`
	ChunkSize            int             `toml:"chunk_size"`
	RateLimit            RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls connection rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// FilesConfig holds file responder settings.
type FilesConfig struct {
	Root string `toml:"root"`
	// Index is served for directory requests; "-" disables the fallback.
	Index string `toml:"index"`
}

// ProxyConfig holds proxy forwarding settings.
type ProxyConfig struct {
	MaxRedirects       int      `toml:"max_redirects"`
	MaxSlowDowns       int      `toml:"max_slow_downs"`
	RetryDelayMillis   int      `toml:"retry_delay_ms"`
	DialTimeoutSeconds int      `toml:"dial_timeout_seconds"`
	AllowedHosts       []string `toml:"allowed_hosts"`
}

// ClientConfig holds fetch settings.
type ClientConfig struct {
	Proxy          string `toml:"proxy"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRedirects   int    `toml:"max_redirects"`
	MaxSlowDowns   int    `toml:"max_slow_downs"`
	MaxBodyBytes   int64  `toml:"max_body_bytes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds the admin HTTP endpoint settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/gemini-lite/config.toml then configs/config.toml and falls back to
// defaults when neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.Mode = cli.Mode
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags of the selected mode.
func (c *Config) applyCLI(cli *CLI) {
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	switch cli.Mode {
	case ModeServe:
		if cli.Serve.Root != "" {
			c.Files.Root = cli.Serve.Root
		}
		if cli.Serve.Host != "" {
			c.Server.Host = cli.Serve.Host
		}
		if cli.Serve.Port != 0 {
			c.Server.Port = cli.Serve.Port
		}
	case ModeProxy:
		if cli.Proxy.Host != "" {
			c.Server.Host = cli.Proxy.Host
		}
		if cli.Proxy.Port != 0 {
			c.Server.Port = cli.Proxy.Port
		}
	case ModeFetch:
		if cli.Fetch.Proxy != "" {
			c.Client.Proxy = cli.Fetch.Proxy
		}
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be 0–65535; got %d", c.Metrics.Port)
	}
	for name, v := range map[string]int{
		"server.workers":                c.Server.Workers,
		"server.idle_timeout_seconds":   c.Server.IdleTimeoutSeconds,
		"server.shutdown_grace_seconds": c.Server.ShutdownGraceSeconds,
		"server.chunk_size":             c.Server.ChunkSize,
		"server.rate_limit.burst":       c.Server.RateLimit.Burst,
		"proxy.max_redirects":           c.Proxy.MaxRedirects,
		"proxy.max_slow_downs":          c.Proxy.MaxSlowDowns,
		"proxy.retry_delay_ms":          c.Proxy.RetryDelayMillis,
		"proxy.dial_timeout_seconds":    c.Proxy.DialTimeoutSeconds,
		"client.timeout_seconds":        c.Client.TimeoutSeconds,
		"client.max_redirects":          c.Client.MaxRedirects,
		"client.max_slow_downs":         c.Client.MaxSlowDowns,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", name, v)
		}
	}
	if c.Client.MaxBodyBytes < 0 {
		return fmt.Errorf("client.max_body_bytes must be non-negative; got %d", c.Client.MaxBodyBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if c.Client.Proxy != "" {
		if err := validateHostPort(c.Client.Proxy); err != nil {
			return fmt.Errorf("client.proxy: %w", err)
		}
	}

	if c.Mode == ModeServe && c.Files.Root != "" {
		info, err := os.Stat(c.Files.Root)
		if err != nil {
			return fmt.Errorf("files.root: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("files.root %q is not a directory", c.Files.Root)
		}
	}
	if strings.ContainsAny(c.Files.Index, "/\\") {
		return fmt.Errorf("files.index must be a file name; got %q", c.Files.Index)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServePort
		if c.Mode == ModeProxy {
			c.Server.Port = DefaultProxyPort
		}
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = 32
	}
	if c.Server.IdleTimeoutSeconds == 0 {
		c.Server.IdleTimeoutSeconds = 5
	}
	if c.Server.ShutdownGraceSeconds == 0 {
		c.Server.ShutdownGraceSeconds = 5
	}
	if c.Server.ChunkSize == 0 {
		c.Server.ChunkSize = 8192
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 1
	}
	if c.Files.Root == "" {
		c.Files.Root = "."
	}
	if c.Files.Index == "" {
		c.Files.Index = "index.gmi"
	}
	if c.Proxy.MaxRedirects == 0 {
		c.Proxy.MaxRedirects = 5
	}
	if c.Proxy.MaxSlowDowns == 0 {
		c.Proxy.MaxSlowDowns = 5
	}
	if c.Proxy.RetryDelayMillis == 0 {
		c.Proxy.RetryDelayMillis = 1000
	}
	if c.Proxy.DialTimeoutSeconds == 0 {
		c.Proxy.DialTimeoutSeconds = 5
	}
	if c.Client.TimeoutSeconds == 0 {
		c.Client.TimeoutSeconds = 5
	}
	if c.Client.MaxRedirects == 0 {
		c.Client.MaxRedirects = 5
	}
	if c.Client.MaxSlowDowns == 0 {
		c.Client.MaxSlowDowns = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Host == "" {
		c.Metrics.Host = "127.0.0.1"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9195
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func validateHostPort(s string) error {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("expected host:port; got %q", s)
	}
	if host == "" {
		return errors.New("missing host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IdleTimeout returns the per-connection idle timeout.
func (c *ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long in-flight connections may run after shutdown starts.
func (c *ServerConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// RetryDelay returns the pause before retrying a slowed-down request.
func (c *ProxyConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

// DialTimeout returns the outbound connect timeout.
func (c *ProxyConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// Timeout returns the client's connect and idle timeout.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Addr returns the admin endpoint listen address as host:port.
func (c *MetricsConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Source returns the config file that was loaded, or empty when running on defaults.
func (c *Config) Source() string {
	return c.filePath
}
