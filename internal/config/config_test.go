package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path, mode string) *CLI {
	return &CLI{Config: path, Mode: mode}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 2000
workers = 8
idle_timeout_seconds = 3

[files]
root = "`+filepath.ToSlash(root)+`"
index = "home.gmi"

[proxy]
max_redirects = 3
retry_delay_ms = 250
allowed_hosts = ["example.com"]

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path, ModeServe))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:2000" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:2000")
	}
	if cfg.Server.Workers != 8 {
		t.Errorf("Server.Workers = %d, want 8", cfg.Server.Workers)
	}
	if cfg.Server.IdleTimeout() != 3*time.Second {
		t.Errorf("Server.IdleTimeout() = %v, want 3s", cfg.Server.IdleTimeout())
	}
	if cfg.Files.Index != "home.gmi" {
		t.Errorf("Files.Index = %q, want %q", cfg.Files.Index, "home.gmi")
	}
	if cfg.Proxy.MaxRedirects != 3 {
		t.Errorf("Proxy.MaxRedirects = %d, want 3", cfg.Proxy.MaxRedirects)
	}
	if cfg.Proxy.RetryDelay() != 250*time.Millisecond {
		t.Errorf("Proxy.RetryDelay() = %v, want 250ms", cfg.Proxy.RetryDelay())
	}
	if len(cfg.Proxy.AllowedHosts) != 1 || cfg.Proxy.AllowedHosts[0] != "example.com" {
		t.Errorf("Proxy.AllowedHosts = %v, want [example.com]", cfg.Proxy.AllowedHosts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Source() != path {
		t.Errorf("Source() = %q, want %q", cfg.Source(), path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(cliWithPath(path, ModeServe))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != DefaultServePort {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, DefaultServePort)
	}
	if cfg.Server.Workers != 32 {
		t.Errorf("default Server.Workers = %d, want 32", cfg.Server.Workers)
	}
	if cfg.Server.IdleTimeout() != 5*time.Second {
		t.Errorf("default Server.IdleTimeout() = %v, want 5s", cfg.Server.IdleTimeout())
	}
	if cfg.Server.ChunkSize != 8192 {
		t.Errorf("default Server.ChunkSize = %d, want 8192", cfg.Server.ChunkSize)
	}
	if cfg.Files.Index != "index.gmi" {
		t.Errorf("default Files.Index = %q, want %q", cfg.Files.Index, "index.gmi")
	}
	if cfg.Proxy.MaxRedirects != 5 || cfg.Client.MaxRedirects != 5 {
		t.Errorf("default max redirects = %d/%d, want 5/5", cfg.Proxy.MaxRedirects, cfg.Client.MaxRedirects)
	}
	if cfg.Proxy.RetryDelay() != time.Second {
		t.Errorf("default Proxy.RetryDelay() = %v, want 1s", cfg.Proxy.RetryDelay())
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_ProxyDefaultPort(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, ""), ModeProxy))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != DefaultProxyPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultProxyPort)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml", ModeServe))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(cliWithPath(writeConfig(t, "[server\nport = "), ModeServe))
	if err == nil {
		t.Fatal("Load() expected error for invalid TOML, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 1958

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		LogLevel: "debug",
		Mode:     ModeServe,
		Serve: ServeCmd{
			Root: root,
			Host: "127.0.0.1",
			Port: 3000,
		},
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Files.Root != root {
		t.Errorf("Files.Root = %q, want %q (CLI override)", cfg.Files.Root, root)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_FetchProxyOverride(t *testing.T) {
	cli := &CLI{
		Config: writeConfig(t, "[client]\nproxy = \"localhost:1000\"\n"),
		Mode:   ModeFetch,
		Fetch:  FetchCmd{URL: "gemini-lite://example.com/", Proxy: "localhost:1959"},
	}
	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.Proxy != "localhost:1959" {
		t.Errorf("Client.Proxy = %q, want %q", cfg.Client.Proxy, "localhost:1959")
	}
}

func TestLoad_ModeScopedOverrides(t *testing.T) {
	cli := &CLI{
		Config: writeConfig(t, ""),
		Mode:   ModeProxy,
		Serve:  ServeCmd{Port: 4000},
		Proxy:  ProxyCmd{Port: 5000},
	}
	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000 from the proxy flags", cfg.Server.Port)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"negative port", "[server]\nport = -1\n"},
		{"port too large", "[server]\nport = 70000\n"},
		{"negative workers", "[server]\nworkers = -2\n"},
		{"negative timeout", "[server]\nidle_timeout_seconds = -5\n"},
		{"negative redirects", "[proxy]\nmax_redirects = -1\n"},
		{"negative body limit", "[client]\nmax_body_bytes = -1\n"},
		{"bad client proxy", "[client]\nproxy = \"nohostport\"\n"},
		{"bad client proxy port", "[client]\nproxy = \"localhost:0\"\n"},
		{"rate limit without rps", "[server.rate_limit]\nenabled = true\n"},
		{"index with slash", "[files]\nindex = \"a/b.gmi\"\n"},
		{"missing root", "[files]\nroot = \"/nonexistent/gemini-lite-root\"\n"},
		{"invalid log level", "[log]\nlevel = \"verbose\"\n"},
		{"invalid log format", "[log]\nformat = \"xml\"\n"},
		{"metrics path without slash", "[metrics]\nenabled = true\npath = \"metrics\"\n"},
		{"metrics path reserved", "[metrics]\nenabled = true\npath = \"/healthz\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(cliWithPath(writeConfig(t, tt.data), ModeServe)); err == nil {
				t.Fatalf("Load() expected error for %s, got nil", tt.name)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
burst = 10
`)

	cfg, err := Load(cliWithPath(path, ModeServe))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
	if cfg.Server.RateLimit.Burst != 10 {
		t.Errorf("RateLimit.Burst = %d, want 10", cfg.Server.RateLimit.Burst)
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "found.toml")
	if err := os.WriteFile(existing, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml"), existing})
	if got != existing {
		t.Errorf("findConfigInPaths() = %q, want %q", got, existing)
	}
	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml")}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}
