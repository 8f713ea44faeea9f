package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hendrywilliam/siren/src/logging"
	"github.com/hendrywilliam/siren/src/websocket"
)

var envKeys = []string{
	"WS_URL", "WS_PROTOCOLS",
	"WS_HEARTBEAT_MESSAGE", "WS_HEARTBEAT_INTERVAL", "WS_HEARTBEAT_PONG_TIMEOUT",
	"WS_RECONNECT_RETRIES", "WS_RECONNECT_DELAY", "WS_RECONNECT_MULTIPLIER",
	"WS_RECONNECT_MAX_DELAY", "WS_RECONNECT_JITTER",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_NOCOLOR", "API_ADDRESS", "API_TOKEN",
}

// clearEnv unsets every variable the loader reads for the duration of t.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "siren.toml", `
url = "wss://echo.example.test/socket"
protocols = ["chat", "superchat"]

[heartbeat]
message = "hb"
interval = "5s"
pong_timeout = "2s"

[reconnect]
retries = 3
delay = "250ms"
multiplier = 2.0
max_delay = "10s"
jitter = true

[log]
level = "debug"
format = "json"

[api]
addr = "127.0.0.1:7010"
token = "secret"
`)
	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.URL != "wss://echo.example.test/socket" {
		t.Fatalf("unexpected url: %q", cfg.URL)
	}
	if len(cfg.Protocols) != 2 || cfg.Protocols[1] != "superchat" {
		t.Fatalf("unexpected protocols: %v", cfg.Protocols)
	}
	hb := cfg.Heartbeat
	if hb == nil || hb.Message.String() != "hb" || hb.Interval != 5*time.Second || hb.PongTimeout != 2*time.Second {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}
	rc := cfg.Reconnect
	if rc == nil || rc.Retries != 3 || rc.Delay != 250*time.Millisecond {
		t.Fatalf("unexpected reconnect: %+v", rc)
	}
	if rc.Backoff.Multiplier != 2 || rc.Backoff.MaxDelay != 10*time.Second || !rc.Backoff.Jitter {
		t.Fatalf("unexpected backoff: %+v", rc.Backoff)
	}
	if cfg.Log.Level != slog.LevelDebug || cfg.Log.Format != logging.FormatJSON {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.APIAddr != "127.0.0.1:7010" || cfg.APIToken != "secret" {
		t.Fatalf("unexpected api config: %q %q", cfg.APIAddr, cfg.APIToken)
	}
}

func TestLoadYAMLDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "siren.yaml", `
url: ws://localhost:8080/ws
heartbeat: {}
reconnect: {}
`)
	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Heartbeat == nil || !cfg.Heartbeat.Message.Equal(websocket.Text(websocket.DefaultPingMessage)) {
		t.Fatalf("unexpected heartbeat: %+v", cfg.Heartbeat)
	}
	if cfg.Heartbeat.Interval != time.Second || cfg.Heartbeat.PongTimeout != time.Second {
		t.Fatalf("unexpected heartbeat timings: %+v", cfg.Heartbeat)
	}
	if cfg.Reconnect == nil || cfg.Reconnect.Retries != -1 || cfg.Reconnect.Delay != time.Second {
		t.Fatalf("unexpected reconnect: %+v", cfg.Reconnect)
	}
	if cfg.Log.Level != slog.LevelInfo || cfg.Log.Format != logging.FormatConsole {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.APIAddr != "" {
		t.Fatalf("api should be off by default: %q", cfg.APIAddr)
	}
}

func TestLoadWithoutSections(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "siren.yml", "url: ws://localhost:8080/ws\n")
	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Heartbeat != nil || cfg.Reconnect != nil {
		t.Fatalf("features should be off: %+v %+v", cfg.Heartbeat, cfg.Reconnect)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "siren.toml", `
url = "ws://file.example.test"

[reconnect]
retries = 3
`)
	t.Setenv("WS_URL", "ws://env.example.test")
	t.Setenv("WS_PROTOCOLS", "a, b,,c")
	t.Setenv("WS_RECONNECT_RETRIES", "7")
	t.Setenv("WS_HEARTBEAT_INTERVAL", "30s")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.URL != "ws://env.example.test" {
		t.Fatalf("unexpected url: %q", cfg.URL)
	}
	if strings.Join(cfg.Protocols, ",") != "a,b,c" {
		t.Fatalf("unexpected protocols: %v", cfg.Protocols)
	}
	if cfg.Reconnect == nil || cfg.Reconnect.Retries != 7 {
		t.Fatalf("unexpected reconnect: %+v", cfg.Reconnect)
	}
	if cfg.Heartbeat == nil || cfg.Heartbeat.Interval != 30*time.Second || cfg.Heartbeat.PongTimeout != time.Second {
		t.Fatalf("unexpected heartbeat: %+v", cfg.Heartbeat)
	}
	if cfg.Log.Level != slog.LevelWarn {
		t.Fatalf("unexpected level: %v", cfg.Log.Level)
	}
}

func TestEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("WS_URL", "wss://only.example.test")
	t.Setenv("WS_RECONNECT_DELAY", "2s")
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Reconnect == nil || cfg.Reconnect.Delay != 2*time.Second || cfg.Reconnect.Retries != -1 {
		t.Fatalf("unexpected reconnect: %+v", cfg.Reconnect)
	}
	if cfg.Heartbeat != nil {
		t.Fatalf("heartbeat should be off: %+v", cfg.Heartbeat)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfiguration(""); err == nil || !strings.Contains(err.Error(), "WS_URL") {
		t.Fatalf("expected missing url error, got %v", err)
	}

	t.Setenv("WS_URL", "http://example.test")
	if _, err := LoadConfiguration(""); err == nil {
		t.Fatalf("expected scheme error")
	}

	t.Setenv("WS_URL", "ws://example.test")
	t.Setenv("WS_HEARTBEAT_INTERVAL", "soon")
	if _, err := LoadConfiguration(""); err == nil || !strings.Contains(err.Error(), "heartbeat interval") {
		t.Fatalf("expected duration error, got %v", err)
	}
	os.Unsetenv("WS_HEARTBEAT_INTERVAL")

	t.Setenv("WS_RECONNECT_RETRIES", "many")
	if _, err := LoadConfiguration(""); err == nil {
		t.Fatalf("expected retries error")
	}
	os.Unsetenv("WS_RECONNECT_RETRIES")

	if _, err := LoadConfiguration(writeFile(t, "siren.json", "{}")); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, ".env", "WS_URL=ws://dotenv.example.test\nAPI_TOKEN=abc\n")
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env"), path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.URL != "ws://dotenv.example.test" || cfg.APIToken != "abc" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := AppConfig{
		URL:       "ws://example.test",
		Protocols: []string{"chat"},
		Reconnect: websocket.DefaultReconnect(),
	}
	log := slog.Default()
	opts := cfg.SessionOptions(log)
	if !opts.Immediate || !opts.AutoClose {
		t.Fatalf("defaults lost: %+v", opts)
	}
	if opts.AutoReconnect != cfg.Reconnect || opts.Heartbeat != nil || opts.Logger != log {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if len(opts.Protocols) != 1 || opts.Protocols[0] != "chat" {
		t.Fatalf("unexpected protocols: %v", opts.Protocols)
	}
}
