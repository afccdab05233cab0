// ABOUTME: The relay state machine as a pure function of state and input
// ABOUTME: Covers the connect, disconnect, error, idle and recovery paths plus moderator commands

package relay

import (
	"github.com/2389/stranger-relay/internal/envelope"
)

// Step computes the next state and the ordered actions for one input. It
// performs no I/O and is deterministic.
func Step(s State, in Input) (State, []Action) {
	if in.Command != nil {
		return stepCommand(s, in.Command)
	}
	return stepEnvelope(s, in.From, in.Envelope)
}

func stepEnvelope(s State, from Side, env envelope.Envelope) (State, []Action) {
	kind := env.Kind()

	if !s.Active {
		switch kind {
		case envelope.KindConnected:
			s.Active = true
			return s, []Action{
				SessionStarted{Topics: cloneTopics(s.Topics)},
				Post{Notice: connectedNotice(s.Topics)},
			}
		case envelope.KindConnectionError:
			// Only the failing side is retried; the other is either searching
			// or already waiting on its own RESTART.
			return s, []Action{Send{To: from, Envelope: envelope.Signal(envelope.KindRestart)}}
		default:
			return s, nil
		}
	}

	switch kind {
	case envelope.KindDisconnected:
		actions := []Action{
			Post{Notice: disconnectedNotice(from)},
			kill(SideA),
			kill(SideB),
			SessionEnded{Reason: ReasonDisconnected, Side: from},
		}
		return recovery(s, actions)

	case envelope.KindConnectionError:
		actions := []Action{
			kill(SideA),
			kill(SideB),
			Post{Notice: errorNotice()},
			SessionEnded{Reason: ReasonConnectionError, Side: from},
		}
		return recovery(s, actions)

	case envelope.KindIdle:
		return recovery(s, []Action{SessionEnded{Reason: ReasonIdle, Side: from}})

	case envelope.KindMessage:
		return s, []Action{
			Send{To: from.Opposite(), Envelope: env},
			Post{Notice: personaNotice(from, env.Text())},
		}

	case envelope.KindCommonInterests:
		var actions []Action
		if !s.NotifiedCommonInterests {
			s.NotifiedCommonInterests = true
			actions = append(actions, Post{Notice: commonInterestsNotice(env.Items())})
		}
		return s, append(actions, Send{To: from.Opposite(), Envelope: env})

	default:
		return s, []Action{Send{To: from.Opposite(), Envelope: env}}
	}
}

func stepCommand(s State, cmd Command) (State, []Action) {
	switch c := cmd.(type) {
	case SetTopicsCommand:
		s.Topics = cloneTopics(c.Topics)
		return s, []Action{
			Send{To: SideA, Envelope: envelope.SetTopics(s.Topics)},
			Send{To: SideB, Envelope: envelope.SetTopics(s.Topics)},
			TopicsChanged{Topics: cloneTopics(s.Topics)},
			Post{Notice: topicsNotice(s.Topics)},
		}

	case RetryCommand:
		actions := []Action{
			Post{Notice: retryNotice()},
			kill(SideA),
			kill(SideB),
		}
		if s.Active {
			actions = append(actions, SessionEnded{Reason: ReasonRetry})
		}
		return recovery(s, actions)

	case InjectCommand:
		if !s.Active || c.Text == "" {
			return s, nil
		}
		return s, []Action{
			Post{Notice: personaNotice(c.As, c.Text)},
			Send{To: c.As.Opposite(), Envelope: envelope.Message(c.Text)},
		}

	default:
		return s, nil
	}
}

// recovery appends the recovery sequence: reset, "searching" notice, then
// RESTART to both sides.
func recovery(s State, actions []Action) (State, []Action) {
	s.Active = false
	s.NotifiedCommonInterests = false
	return s, append(actions,
		Post{Notice: searchingNotice(s.Topics)},
		Send{To: SideA, Envelope: envelope.Signal(envelope.KindRestart)},
		Send{To: SideB, Envelope: envelope.Signal(envelope.KindRestart)},
	)
}

func kill(side Side) Action {
	return Send{To: side, Envelope: envelope.Signal(envelope.KindKill)}
}
