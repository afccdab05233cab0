// ABOUTME: Joint session state, inputs, moderator commands and actions of the relay
// ABOUTME: All of these are plain values consumed and produced by Step

package relay

import (
	"slices"

	"github.com/2389/stranger-relay/internal/envelope"
)

// Side names one of the two hosts.
type Side int

const (
	SideA Side = iota
	SideB
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// State is the joint session state. Topics is never modified in place.
type State struct {
	Active                  bool
	NotifiedCommonInterests bool
	Topics                  []string
}

// Command is a moderator request.
type Command interface {
	command()
}

// SetTopicsCommand replaces the topic list used for the next connect. An
// empty list clears it.
type SetTopicsCommand struct {
	Topics []string
}

// RetryCommand tears the joint session down and searches again.
type RetryCommand struct{}

// InjectCommand speaks as one persona: the text is delivered to the
// opposite side's stranger.
type InjectCommand struct {
	As   Side
	Text string
}

func (SetTopicsCommand) command() {}
func (RetryCommand) command()     {}
func (InjectCommand) command()    {}

// Input is one thing the orchestrator reacts to: an Envelope from a host or a
// moderator Command.
type Input struct {
	From     Side
	Envelope envelope.Envelope
	Command  Command
}

// FromHost wraps an Envelope received from side.
func FromHost(side Side, env envelope.Envelope) Input {
	return Input{From: side, Envelope: env}
}

// FromModerator wraps a moderator command.
func FromModerator(cmd Command) Input {
	return Input{Command: cmd}
}

// EndReason says why a joint session ended.
type EndReason string

const (
	ReasonDisconnected    EndReason = "disconnected"
	ReasonConnectionError EndReason = "connection_error"
	ReasonIdle            EndReason = "idle"
	ReasonRetry           EndReason = "retry"
)

// Action is one effect requested by Step.
type Action interface {
	action()
}

// Post sends a notice to the moderator channel and waits for the result.
type Post struct {
	Notice Notice
}

// Send delivers an Envelope to one host.
type Send struct {
	To       Side
	Envelope envelope.Envelope
}

// SessionStarted marks a SEARCHING to ACTIVE transition.
type SessionStarted struct {
	Topics []string
}

// SessionEnded marks the end of an active joint session. Side is the side
// that triggered it; it is meaningless for ReasonRetry.
type SessionEnded struct {
	Reason EndReason
	Side   Side
}

// TopicsChanged reports a new topic list.
type TopicsChanged struct {
	Topics []string
}

func (Post) action()           {}
func (Send) action()           {}
func (SessionStarted) action() {}
func (SessionEnded) action()   {}
func (TopicsChanged) action()  {}

func cloneTopics(topics []string) []string {
	if len(topics) == 0 {
		return nil
	}
	return slices.Clone(topics)
}
