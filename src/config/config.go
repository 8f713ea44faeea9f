package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hendrywilliam/siren/src/logging"
	"github.com/hendrywilliam/siren/src/websocket"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	URL       string
	Protocols []string
	// Nil disables the feature.
	Heartbeat *websocket.HeartbeatOptions
	Reconnect *websocket.ReconnectOptions
	Log       logging.Config
	APIAddr   string
	APIToken  string
}

type fileConfig struct {
	URL       string           `toml:"url" yaml:"url"`
	Protocols []string         `toml:"protocols" yaml:"protocols"`
	Heartbeat *heartbeatConfig `toml:"heartbeat" yaml:"heartbeat"`
	Reconnect *reconnectConfig `toml:"reconnect" yaml:"reconnect"`
	Log       logConfig        `toml:"log" yaml:"log"`
	API       apiConfig        `toml:"api" yaml:"api"`
}

type heartbeatConfig struct {
	Message     string `toml:"message" yaml:"message"`
	Interval    string `toml:"interval" yaml:"interval"`
	PongTimeout string `toml:"pong_timeout" yaml:"pong_timeout"`
}

type reconnectConfig struct {
	Retries    *int    `toml:"retries" yaml:"retries"`
	Delay      string  `toml:"delay" yaml:"delay"`
	Multiplier float64 `toml:"multiplier" yaml:"multiplier"`
	MaxDelay   string  `toml:"max_delay" yaml:"max_delay"`
	Jitter     bool    `toml:"jitter" yaml:"jitter"`
}

type logConfig struct {
	Level   string `toml:"level" yaml:"level"`
	Format  string `toml:"format" yaml:"format"`
	NoColor bool   `toml:"no_color" yaml:"no_color"`
}

type apiConfig struct {
	Addr  string `toml:"addr" yaml:"addr"`
	Token string `toml:"token" yaml:"token"`
}

// LoadDotEnv loads the given .env files. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("no env file", "path", f)
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfiguration reads the optional config file at path, applies
// environment overrides and validates the result.
func LoadConfiguration(path string) (AppConfig, error) {
	var raw fileConfig
	if path != "" {
		if err := readFile(path, &raw); err != nil {
			return AppConfig{}, err
		}
	}
	if err := applyEnv(&raw); err != nil {
		return AppConfig{}, err
	}
	cfg, err := resolve(raw)
	if err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func readFile(path string, out *fileConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, out); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return fmt.Errorf("config load failed (%s): unsupported extension", path)
	}
	return nil
}

func applyEnv(raw *fileConfig) error {
	strs := map[string]*string{
		"WS_URL":      &raw.URL,
		"LOG_LEVEL":   &raw.Log.Level,
		"LOG_FORMAT":  &raw.Log.Format,
		"API_ADDRESS": &raw.API.Addr,
		"API_TOKEN":   &raw.API.Token,
	}
	for k, v := range strs {
		if val, ok := os.LookupEnv(k); ok {
			*v = strings.TrimSpace(val)
		}
	}
	if val, ok := os.LookupEnv("WS_PROTOCOLS"); ok {
		raw.Protocols = splitList(val)
	}
	if val, ok := os.LookupEnv("LOG_NOCOLOR"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("parse LOG_NOCOLOR: %w", err)
		}
		raw.Log.NoColor = b
	}

	// Any heartbeat variable enables the heartbeat.
	if raw.Heartbeat == nil && anySet("WS_HEARTBEAT_MESSAGE", "WS_HEARTBEAT_INTERVAL", "WS_HEARTBEAT_PONG_TIMEOUT") {
		raw.Heartbeat = &heartbeatConfig{}
	}
	if hb := raw.Heartbeat; hb != nil {
		overrides := map[string]*string{
			"WS_HEARTBEAT_MESSAGE":      &hb.Message,
			"WS_HEARTBEAT_INTERVAL":     &hb.Interval,
			"WS_HEARTBEAT_PONG_TIMEOUT": &hb.PongTimeout,
		}
		for k, v := range overrides {
			if val, ok := os.LookupEnv(k); ok {
				*v = strings.TrimSpace(val)
			}
		}
	}

	reconnectKeys := []string{
		"WS_RECONNECT_RETRIES",
		"WS_RECONNECT_DELAY",
		"WS_RECONNECT_MULTIPLIER",
		"WS_RECONNECT_MAX_DELAY",
		"WS_RECONNECT_JITTER",
	}
	if raw.Reconnect == nil && anySet(reconnectKeys...) {
		raw.Reconnect = &reconnectConfig{}
	}
	if raw.Reconnect == nil {
		return nil
	}
	rc := raw.Reconnect
	if val, ok := os.LookupEnv("WS_RECONNECT_RETRIES"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("parse WS_RECONNECT_RETRIES: %w", err)
		}
		rc.Retries = &n
	}
	if val, ok := os.LookupEnv("WS_RECONNECT_DELAY"); ok {
		rc.Delay = strings.TrimSpace(val)
	}
	if val, ok := os.LookupEnv("WS_RECONNECT_MAX_DELAY"); ok {
		rc.MaxDelay = strings.TrimSpace(val)
	}
	if val, ok := os.LookupEnv("WS_RECONNECT_MULTIPLIER"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return fmt.Errorf("parse WS_RECONNECT_MULTIPLIER: %w", err)
		}
		rc.Multiplier = f
	}
	if val, ok := os.LookupEnv("WS_RECONNECT_JITTER"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("parse WS_RECONNECT_JITTER: %w", err)
		}
		rc.Jitter = b
	}
	return nil
}

func resolve(raw fileConfig) (AppConfig, error) {
	cfg := AppConfig{
		URL:       strings.TrimSpace(raw.URL),
		Protocols: raw.Protocols,
		Log:       logging.DefaultConfig(),
		APIAddr:   raw.API.Addr,
		APIToken:  raw.API.Token,
	}
	if cfg.URL == "" {
		return AppConfig{}, fmt.Errorf("provide WS_URL or url in the config file")
	}
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return AppConfig{}, fmt.Errorf("url %q: scheme must be ws or wss", cfg.URL)
	}

	if raw.Log.Level != "" {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return AppConfig{}, fmt.Errorf("unknown log level %q", raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	if raw.Log.Format != "" {
		f, ok := logging.ParseFormat(raw.Log.Format)
		if !ok {
			return AppConfig{}, fmt.Errorf("unknown log format %q", raw.Log.Format)
		}
		cfg.Log.Format = f
	}
	cfg.Log.NoColor = raw.Log.NoColor

	if hb := raw.Heartbeat; hb != nil {
		opts := websocket.DefaultHeartbeat()
		if hb.Message != "" {
			opts.Message = websocket.Text(hb.Message)
		}
		if err := parseDuration("heartbeat interval", hb.Interval, &opts.Interval); err != nil {
			return AppConfig{}, err
		}
		if err := parseDuration("heartbeat pong_timeout", hb.PongTimeout, &opts.PongTimeout); err != nil {
			return AppConfig{}, err
		}
		cfg.Heartbeat = opts
	}

	if rc := raw.Reconnect; rc != nil {
		opts := websocket.DefaultReconnect()
		if rc.Retries != nil {
			opts.Retries = *rc.Retries
		}
		if err := parseDuration("reconnect delay", rc.Delay, &opts.Delay); err != nil {
			return AppConfig{}, err
		}
		if err := parseDuration("reconnect max_delay", rc.MaxDelay, &opts.Backoff.MaxDelay); err != nil {
			return AppConfig{}, err
		}
		if rc.Multiplier != 0 {
			opts.Backoff.Multiplier = rc.Multiplier
		}
		opts.Backoff.Jitter = rc.Jitter
		cfg.Reconnect = opts
	}
	return cfg, nil
}

func parseDuration(name, raw string, out *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("parse %s: negative duration %s", name, raw)
	}
	*out = d
	return nil
}

func anySet(keys ...string) bool {
	for _, k := range keys {
		if _, ok := os.LookupEnv(k); ok {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SessionOptions maps the configuration onto session options. Hooks are
// left for the caller.
func (c AppConfig) SessionOptions(log *slog.Logger) websocket.Options {
	opts := websocket.DefaultOptions()
	opts.Protocols = c.Protocols
	opts.Heartbeat = c.Heartbeat
	opts.AutoReconnect = c.Reconnect
	opts.Logger = log
	return opts
}
