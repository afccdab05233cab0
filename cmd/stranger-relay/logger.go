// ABOUTME: slog setup for stranger-relay: colorized text or JSON output
// ABOUTME: Host subprocesses log to stderr because stdout carries Envelopes

package main

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/stranger-relay/internal/config"
)

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&relayHandler{mu: &sync.Mutex{}, out: w, level: level})
}

func levelTag(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return color.MagentaString("DBG")
	case slog.LevelInfo:
		return color.CyanString("INF")
	case slog.LevelWarn:
		return color.YellowString("WRN")
	case slog.LevelError:
		return color.New(color.FgRed, color.Bold).Sprint("ERR")
	}
	return level.String()
}

// tagKeys are lifted out of the attribute list into a bracketed prefix,
// so a line reads "[host B] got message from stranger text=hi".
var tagKeys = []string{"component", "side"}

// relayHandler writes one colorized line per record. Handlers derived with
// WithAttrs or WithGroup share the writer lock.
type relayHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	level slog.Level
	tags  map[string]string
	attrs string
	group string
}

func (h *relayHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *relayHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')

	tags := h.tags
	attrs := h.attrs
	r.Attrs(func(a slog.Attr) bool {
		if h.group == "" && isTagKey(a.Key) {
			tags = withTag(tags, a.Key, a.Value.String())
			return true
		}
		attrs += formatAttr(h.group, a)
		return true
	})

	if prefix := tagPrefix(tags); prefix != "" {
		b.WriteString(color.GreenString(prefix))
		b.WriteByte(' ')
	}
	b.WriteString(r.Message)
	b.WriteString(attrs)
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *relayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	for _, a := range attrs {
		if h.group == "" && isTagKey(a.Key) {
			next.tags = withTag(next.tags, a.Key, a.Value.String())
			continue
		}
		next.attrs += formatAttr(h.group, a)
	}
	return &next
}

func (h *relayHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

func isTagKey(key string) bool {
	return slices.Contains(tagKeys, key)
}

// withTag returns a copy of tags with key set; handlers never share a map.
func withTag(tags map[string]string, key, value string) map[string]string {
	out := maps.Clone(tags)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[key] = value
	return out
}

func tagPrefix(tags map[string]string) string {
	var parts []string
	for _, k := range tagKeys {
		if v := tags[k]; v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatAttr(group string, a slog.Attr) string {
	return color.HiBlackString(" "+group+a.Key+"=") + a.Value.String()
}
