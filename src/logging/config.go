package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

type Config struct {
	Level   slog.Level
	Format  Format
	NoColor bool
}

func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Format: FormatConsole}
}

// New builds a logger writing to out. JSON output goes through zerolog.
func New(out io.Writer, cfg Config) *slog.Logger {
	switch cfg.Format {
	case FormatJSON:
		z := zerolog.New(out)
		return slog.New(NewZerologHandler(z, cfg.Level))
	default:
		if cfg.NoColor {
			color.NoColor = true
		}
		return slog.New(NewConsoleHandler(out, ConsoleHandlerOpts{
			SlogOpts: slog.HandlerOptions{Level: cfg.Level},
		}))
	}
}

func ParseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return slog.LevelInfo, false
	case "debug", "trace":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func ParseFormat(raw string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "console", "text", "pretty":
		return FormatConsole, true
	case "json":
		return FormatJSON, true
	default:
		return FormatConsole, false
	}
}
