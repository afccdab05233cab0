// ABOUTME: Fallback notifier that writes relay notices to the log
// ABOUTME: Used when no Matrix moderator room is configured

package main

import (
	"context"
	"log/slog"

	"github.com/2389/stranger-relay/internal/relay"
)

type logNotifier struct {
	logger *slog.Logger
}

func newLogNotifier(logger *slog.Logger) *logNotifier {
	return &logNotifier{logger: logger.With("component", "notice")}
}

func (n *logNotifier) Post(_ context.Context, notice relay.Notice) error {
	n.logger.Info(notice.Markdown, "persona", notice.Persona.String())
	return nil
}
