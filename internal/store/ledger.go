// ABOUTME: Adapts a Store to relay.Observer so joint sessions land in the ledger
// ABOUTME: Write failures are logged and never propagate into the relay loop

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/stranger-relay/internal/relay"
)

// writeTimeout bounds one ledger write made from the relay loop.
const writeTimeout = 5 * time.Second

// Ledger records relay lifecycle changes in a Store.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLedger creates a Ledger. A nil logger uses slog.Default.
func NewLedger(s Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  s,
		logger: logger.With("component", "ledger"),
		now:    time.Now,
	}
}

// SessionStarted implements relay.Observer.
func (l *Ledger) SessionStarted(ctx context.Context, sessionID string, topics []string) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := l.store.StartSession(ctx, sessionID, topics, l.now()); err != nil {
		l.logger.Error("recording session start", "session_id", sessionID, "error", err)
	}
}

// SessionEnded implements relay.Observer.
func (l *Ledger) SessionEnded(ctx context.Context, sessionID string, reason relay.EndReason, side relay.Side) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := l.store.EndSession(ctx, sessionID, reason, side, l.now()); err != nil {
		l.logger.Error("recording session end", "session_id", sessionID, "error", err)
	}
}

// TopicsChanged implements relay.Observer.
func (l *Ledger) TopicsChanged(ctx context.Context, topics []string) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := l.store.SaveTopics(ctx, topics); err != nil {
		l.logger.Error("saving topics", "error", err)
	}
}
