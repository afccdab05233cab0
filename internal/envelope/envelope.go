// ABOUTME: Immutable Envelope value shared by the orchestrator and session hosts
// ABOUTME: Closed Kind enumeration plus constructors for each payload shape

package envelope

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownKind is returned when an Envelope names a kind outside the enumeration.
var ErrUnknownKind = errors.New("unknown envelope kind")

// ErrMissingKind is returned when an Envelope has no kind at all.
var ErrMissingKind = errors.New("missing envelope kind")

// Kind identifies what an Envelope means.
type Kind string

const (
	KindConnected       Kind = "CONNECTED"
	KindTyping          Kind = "TYPING"
	KindStoppedTyping   Kind = "STOPPED_TYPING"
	KindDisconnected    Kind = "DISCONNECTED"
	KindMessage         Kind = "MESSAGE"
	KindIdle            Kind = "IDLE"
	KindConnectionError Kind = "CONNECTION_ERROR"
	KindRestart         Kind = "RESTART"
	KindSetTopics       Kind = "SET_TOPICS"
	KindCommonInterests Kind = "COMMON_INTERESTS"
	KindKill            Kind = "KILL"
)

var kinds = []Kind{
	KindConnected,
	KindTyping,
	KindStoppedTyping,
	KindDisconnected,
	KindMessage,
	KindIdle,
	KindConnectionError,
	KindRestart,
	KindSetTopics,
	KindCommonInterests,
	KindKill,
}

// Kinds returns every valid kind.
func Kinds() []Kind {
	return slices.Clone(kinds)
}

// Valid reports whether k is part of the enumeration.
func (k Kind) Valid() bool {
	return slices.Contains(kinds, k)
}

// hasText reports whether the kind carries a string payload.
func (k Kind) hasText() bool {
	return k == KindMessage
}

// hasList reports whether the kind carries a list payload.
func (k Kind) hasList() bool {
	return k == KindSetTopics || k == KindCommonInterests
}

// Envelope is an immutable {kind, payload} pair.
type Envelope struct {
	kind  Kind
	text  string
	items []string
}

// New builds a payload-less Envelope. It fails for unknown kinds and for
// kinds that require a payload.
func New(kind Kind) (Envelope, error) {
	if kind == "" {
		return Envelope{}, ErrMissingKind
	}
	if !kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if kind.hasText() || kind.hasList() {
		return Envelope{}, fmt.Errorf("kind %s requires a payload", kind)
	}
	return Envelope{kind: kind}, nil
}

// Signal builds a payload-less Envelope for one of the known signal kinds.
// It panics on kinds that carry a payload; use it only with constants.
func Signal(kind Kind) Envelope {
	env, err := New(kind)
	if err != nil {
		panic(err)
	}
	return env
}

// Message builds a MESSAGE Envelope.
func Message(text string) Envelope {
	return Envelope{kind: KindMessage, text: text}
}

// SetTopics builds a SET_TOPICS Envelope. A nil or empty list clears topics.
func SetTopics(topics []string) Envelope {
	return Envelope{kind: KindSetTopics, items: cloneStrings(topics)}
}

// CommonInterests builds a COMMON_INTERESTS Envelope.
func CommonInterests(likes []string) Envelope {
	return Envelope{kind: KindCommonInterests, items: cloneStrings(likes)}
}

// Kind returns the Envelope's kind. The zero Envelope has an empty kind.
func (e Envelope) Kind() Kind {
	return e.kind
}

// Text returns the string payload of a MESSAGE Envelope.
func (e Envelope) Text() string {
	return e.text
}

// Items returns a copy of the list payload.
func (e Envelope) Items() []string {
	return cloneStrings(e.items)
}

// IsZero reports whether e is the zero Envelope.
func (e Envelope) IsZero() bool {
	return e.kind == ""
}

// String implements fmt.Stringer for logging.
func (e Envelope) String() string {
	switch {
	case e.kind.hasText():
		return fmt.Sprintf("%s(%q)", e.kind, e.text)
	case e.kind.hasList():
		return fmt.Sprintf("%s(%v)", e.kind, e.items)
	default:
		return string(e.kind)
	}
}

// Equal reports whether two Envelopes carry the same kind and payload.
func (e Envelope) Equal(other Envelope) bool {
	return e.kind == other.kind && e.text == other.text && slices.Equal(e.items, other.items)
}

func cloneStrings(s []string) []string {
	if len(s) == 0 {
		return []string{}
	}
	return slices.Clone(s)
}
