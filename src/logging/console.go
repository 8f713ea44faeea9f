package logging

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"

	"github.com/fatih/color"
)

type ConsoleHandlerOpts struct {
	SlogOpts slog.HandlerOptions
}

// ConsoleHandler prints one coloured line per record, followed by the
// record's attributes as indented JSON.
type ConsoleHandler struct {
	opts   slog.HandlerOptions
	l      *log.Logger
	attrs  []slog.Attr
	prefix string
}

func NewConsoleHandler(out io.Writer, opts ConsoleHandlerOpts) *ConsoleHandler {
	return &ConsoleHandler{
		opts: opts.SlogOpts,
		l:    log.New(out, "", 0),
	}
}

func (ch *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if ch.opts.Level != nil {
		minLevel = ch.opts.Level.Level()
	}
	return level >= minLevel
}

func (ch *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *ch
	next.attrs = append(append([]slog.Attr(nil), ch.attrs...), qualify(ch.prefix, attrs)...)
	return &next
}

func (ch *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return ch
	}
	next := *ch
	next.prefix = ch.prefix + name + "."
	return &next
}

func (ch *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch {
	case r.Level < slog.LevelInfo:
		level = color.WhiteString(level)
	case r.Level < slog.LevelWarn:
		level = color.GreenString(level)
	case r.Level < slog.LevelError:
		level = color.YellowString(level)
	default:
		level = color.RedString(level)
	}
	timeStr := r.Time.Format("[15:04:05]")
	message := color.HiWhiteString(r.Message)
	// Omit empty struct.
	if r.NumAttrs() == 0 && len(ch.attrs) == 0 {
		ch.l.Println(timeStr, level, message)
		return nil
	}
	fields := make(map[string]interface{}, r.NumAttrs()+len(ch.attrs))
	for _, a := range ch.attrs {
		fields[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[ch.prefix+a.Key] = attrValue(a.Value.Resolve())
		return true
	})
	j, err := json.MarshalIndent(fields, "", " ")
	if err != nil {
		return err
	}
	ch.l.Println(timeStr, level, message, color.WhiteString(string(j)))
	return nil
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindGroup:
		group := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			group[a.Key] = attrValue(a.Value.Resolve())
		}
		return group
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func qualify(prefix string, attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, slog.Attr{Key: prefix + a.Key, Value: slog.AnyValue(attrValue(a.Value.Resolve()))})
	}
	return out
}
