// Package logging provides the slog handler used by the phishlens CLI.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// CLIHandler renders records as "msg: k=v k=v" lines, coloured by level
type CLIHandler struct {
	mu     *sync.Mutex
	writer io.Writer
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
	colors bool
}

// NewCLIHandler creates a handler writing to w at or above level
func NewCLIHandler(w io.Writer, level slog.Leveler, colors bool) *CLIHandler {
	return &CLIHandler{
		mu:     &sync.Mutex{},
		writer: w,
		level:  level,
		colors: colors,
	}
}

func (h *CLIHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *CLIHandler) Handle(_ context.Context, r slog.Record) error {
	msg := r.Message
	if h.prefix != "" {
		msg = "[" + h.prefix + "] " + msg
	}

	attrs := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs = append(attrs, formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, formatAttr(a))
		return true
	})
	if len(attrs) > 0 {
		msg = msg + ": " + strings.Join(attrs, " ")
	}

	if c := h.levelColor(r.Level); c != nil {
		msg = c.Sprint(msg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.writer, msg)
	return err
}

func (h *CLIHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *CLIHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.prefix = name
	return &clone
}

func (h *CLIHandler) levelColor(level slog.Level) *color.Color {
	if !h.colors {
		return nil
	}
	var c *color.Color
	switch {
	case level >= slog.LevelError:
		c = color.New(color.FgRed)
	case level >= slog.LevelWarn:
		c = color.New(color.FgYellow)
	case level < slog.LevelInfo:
		c = color.New(color.FgHiBlack)
	default:
		return nil
	}
	c.EnableColor()
	return c
}

func formatAttr(a slog.Attr) string {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindString && strings.ContainsAny(v.String(), " \t\"=") {
		return fmt.Sprintf("%s=%q", a.Key, v.String())
	}
	return fmt.Sprintf("%s=%v", a.Key, v)
}

// NewCLILogger returns a logger writing to stderr at the named level
func NewCLILogger(level string, colors bool) *slog.Logger {
	return slog.New(NewCLIHandler(os.Stderr, ParseLogLevel(level), colors))
}

// SetDefaultCLILogger installs a CLI logger as the slog default
func SetDefaultCLILogger(level string, colors bool) *slog.Logger {
	logger := NewCLILogger(level, colors)
	slog.SetDefault(logger)
	return logger
}

// ParseLogLevel converts a string log level to slog.Level.
// Defaults to slog.LevelInfo for unrecognized strings.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
