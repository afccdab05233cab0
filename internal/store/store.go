// ABOUTME: Ledger interface and data types for stranger-relay persistence
// ABOUTME: Defines Session rows and the Store interface the relay binary depends on

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/stranger-relay/internal/relay"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// EndReasonAbandoned marks sessions still open when the previous process
// stopped.
const EndReasonAbandoned relay.EndReason = "abandoned"

// Session is one joint session, from the first side connecting until either
// side ended it. EndedAt is nil while the session is running.
type Session struct {
	ID        string
	Topics    []string
	StartedAt time.Time
	EndedAt   *time.Time
	Reason    relay.EndReason
	// EndedBy is the side that ended the session ("A" or "B").
	EndedBy string
}

// Duration returns how long the session lasted, or zero while it is open.
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Store persists joint session lifecycle rows and the moderator's topic list.
// Message text is never stored.
type Store interface {
	StartSession(ctx context.Context, id string, topics []string, at time.Time) error
	EndSession(ctx context.Context, id string, reason relay.EndReason, side relay.Side, at time.Time) error
	GetSession(ctx context.Context, id string) (*Session, error)
	RecentSessions(ctx context.Context, limit int) ([]*Session, error)

	// Topics returns the persisted topic list, or nil when none was saved.
	Topics(ctx context.Context) ([]string, error)
	SaveTopics(ctx context.Context, topics []string) error

	Close() error
}
