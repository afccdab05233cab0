// ABOUTME: Single-threaded relay loop that owns the joint session state
// ABOUTME: Feeds host Envelopes and moderator commands through Step and executes the actions in order

package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/stranger-relay/internal/envelope"
)

// ErrStopped is returned by Submit once Run has returned.
var ErrStopped = errors.New("relay stopped")

// Link is the orchestrator's view of one session host.
type Link interface {
	Send(ctx context.Context, env envelope.Envelope) error
	Events() <-chan envelope.Envelope
}

// Notifier posts notices to the moderator channel.
type Notifier interface {
	Post(ctx context.Context, n Notice) error
}

// Observer is told about joint session lifecycle changes. Calls happen on
// the orchestrator loop and should return quickly.
type Observer interface {
	SessionStarted(ctx context.Context, sessionID string, topics []string)
	SessionEnded(ctx context.Context, sessionID string, reason EndReason, side Side)
	TopicsChanged(ctx context.Context, topics []string)
}

// TrafficRecorder counts Envelopes crossing the orchestrator.
type TrafficRecorder interface {
	EnvelopeReceived(from Side, kind envelope.Kind)
	EnvelopeSent(to Side, kind envelope.Kind)
	NoticePosted(persona Persona, err error)
}

// Options configures an Orchestrator.
type Options struct {
	A, B      Link
	Notifier  Notifier
	Observers []Observer
	Traffic   TrafficRecorder
	// Topics seeds the joint state, typically from the ledger.
	Topics []string
	Logger *slog.Logger
	// NewSessionID defaults to uuid.NewString.
	NewSessionID func() string
}

// Orchestrator runs the relay loop.
type Orchestrator struct {
	opts     Options
	logger   *slog.Logger
	state    State
	session  string
	commands chan Command
	done     chan struct{}
}

// New creates an orchestrator. A and B must be set.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	return &Orchestrator{
		opts:     opts,
		logger:   logger.With("component", "relay"),
		state:    State{Topics: cloneTopics(opts.Topics)},
		commands: make(chan Command),
		done:     make(chan struct{}),
	}
}

// Submit hands a moderator command to the loop. It blocks until the loop
// accepts it, ctx is cancelled, or the loop has stopped.
func (o *Orchestrator) Submit(ctx context.Context, cmd Command) error {
	select {
	case o.commands <- cmd:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes inputs until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	aEvents := o.opts.A.Events()
	bEvents := o.opts.B.Events()

	o.logger.Info("relay started", "topics", o.state.Topics)
	for {
		var in Input
		select {
		case <-ctx.Done():
			o.logger.Info("relay stopping")
			return ctx.Err()

		case env, ok := <-aEvents:
			if !ok {
				o.logger.Error("host link closed", "side", SideA.String())
				aEvents = nil
				continue
			}
			in = FromHost(SideA, env)

		case env, ok := <-bEvents:
			if !ok {
				o.logger.Error("host link closed", "side", SideB.String())
				bEvents = nil
				continue
			}
			in = FromHost(SideB, env)

		case cmd := <-o.commands:
			in = FromModerator(cmd)
		}

		o.handle(ctx, in)
	}
}

func (o *Orchestrator) handle(ctx context.Context, in Input) {
	if in.Command == nil {
		if !in.Envelope.Kind().Valid() {
			o.logger.Warn("dropping malformed envelope", "side", in.From.String())
			return
		}
		if o.opts.Traffic != nil {
			o.opts.Traffic.EnvelopeReceived(in.From, in.Envelope.Kind())
		}
		o.logger.Debug("envelope from host", "side", in.From.String(), "kind", string(in.Envelope.Kind()))
	}

	next, actions := Step(o.state, in)
	if in.Command != nil && len(actions) == 0 {
		o.logger.Info("moderator command had no effect", "active", o.state.Active)
	}
	if next.Active != o.state.Active {
		o.logger.Info("joint session state changed", "active", next.Active)
	}
	o.state = next

	for _, a := range actions {
		o.execute(ctx, a)
	}
}

func (o *Orchestrator) execute(ctx context.Context, a Action) {
	switch a := a.(type) {
	case Post:
		o.post(ctx, a.Notice)

	case Send:
		link := o.link(a.To)
		if err := link.Send(ctx, a.Envelope); err != nil {
			o.logger.Error("sending to host", "side", a.To.String(), "kind", string(a.Envelope.Kind()), "error", err)
			return
		}
		if o.opts.Traffic != nil {
			o.opts.Traffic.EnvelopeSent(a.To, a.Envelope.Kind())
		}

	case SessionStarted:
		o.session = o.opts.NewSessionID()
		o.logger.Info("joint session started", "session_id", o.session, "topics", a.Topics)
		for _, obs := range o.opts.Observers {
			obs.SessionStarted(ctx, o.session, a.Topics)
		}

	case SessionEnded:
		o.logger.Info("joint session ended", "session_id", o.session, "reason", string(a.Reason), "side", a.Side.String())
		for _, obs := range o.opts.Observers {
			obs.SessionEnded(ctx, o.session, a.Reason, a.Side)
		}
		o.session = ""

	case TopicsChanged:
		o.logger.Info("topics changed", "topics", a.Topics)
		for _, obs := range o.opts.Observers {
			obs.TopicsChanged(ctx, a.Topics)
		}
	}
}

// post blocks until the notice is sent or has failed. Failures never stop
// the actions that follow.
func (o *Orchestrator) post(ctx context.Context, n Notice) {
	if o.opts.Notifier == nil {
		return
	}
	err := o.opts.Notifier.Post(ctx, n)
	if err != nil {
		o.logger.Error("posting notice", "persona", n.Persona.String(), "error", err)
	}
	if o.opts.Traffic != nil {
		o.opts.Traffic.NoticePosted(n.Persona, err)
	}
}

func (o *Orchestrator) link(side Side) Link {
	if side == SideA {
		return o.opts.A
	}
	return o.opts.B
}
