// ABOUTME: Session host loop: one protocol client bridged to Envelopes
// ABOUTME: Applies control Envelopes and re-emits client events, including the idle hook

package host

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/2389/stranger-relay/internal/envelope"
	"github.com/2389/stranger-relay/internal/omegle"
)

const (
	// DefaultRestartDelay is the pause between disconnect and reconnect on RESTART.
	DefaultRestartDelay = 2500 * time.Millisecond

	// disconnectTimeout bounds the best-effort disconnect on shutdown.
	disconnectTimeout = 5 * time.Second
)

// SessionClient is the part of omegle.Client a Host drives.
type SessionClient interface {
	Connect(ctx context.Context, topics []string) error
	Disconnect(ctx context.Context) error
	SendMessage(ctx context.Context, text string) error
	SetTyping(ctx context.Context, typing bool) error
	Events() <-chan omegle.Event
}

// Options configures a Host.
type Options struct {
	// Side names the host in logs ("A" or "B").
	Side string
	// InitialTopics are used for the first connect.
	InitialTopics []string
	RestartDelay  time.Duration
	// IdleTimeout, when positive, emits one IDLE if a matched stranger sends
	// no message within this long of the service reporting the match.
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Host bridges one SessionClient to Envelopes. It is not safe for
// concurrent use; Run owns it.
type Host struct {
	client SessionClient
	opts   Options
	topics []string
	logger *slog.Logger

	idle  *time.Timer
	idleC <-chan time.Time
}

// New creates a Host around client.
func New(client SessionClient, opts Options) *Host {
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		client: client,
		opts:   opts,
		topics: slices.Clone(opts.InitialTopics),
		logger: logger.With("component", "host", "side", opts.Side),
	}
}

// Run connects and then serves until ctx is cancelled or in is closed.
// Envelopes for the orchestrator are written to out.
func (h *Host) Run(ctx context.Context, in <-chan envelope.Envelope, out chan<- envelope.Envelope) error {
	defer h.stopIdle()

	h.connect(ctx, out, "startup")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()

		case env, ok := <-in:
			if !ok {
				h.shutdown()
				return nil
			}
			h.apply(ctx, env, out)

		case ev := <-h.client.Events():
			h.translate(ctx, ev, out)

		case <-h.idleC:
			h.idleC = nil
			h.logger.Info("stranger idle", "timeout", h.opts.IdleTimeout)
			h.emit(ctx, out, envelope.Signal(envelope.KindIdle))
		}
	}
}

// apply executes one control Envelope from the orchestrator.
func (h *Host) apply(ctx context.Context, env envelope.Envelope, out chan<- envelope.Envelope) {
	switch env.Kind() {
	case envelope.KindMessage:
		if err := h.client.SendMessage(ctx, env.Text()); err != nil {
			h.logger.Error("sending message to stranger", "error", err)
			return
		}
		h.logger.Info("sent message to stranger", "text", env.Text())

	case envelope.KindTyping:
		if err := h.client.SetTyping(ctx, true); err != nil {
			h.logger.Error("sending typing to stranger", "error", err)
		}

	case envelope.KindStoppedTyping:
		if err := h.client.SetTyping(ctx, false); err != nil {
			h.logger.Error("sending stopped typing to stranger", "error", err)
		}

	case envelope.KindSetTopics:
		h.topics = env.Items()
		h.logger.Info("topics set for next connect", "topics", h.topics)

	case envelope.KindKill:
		h.disconnect(ctx, "kill")

	case envelope.KindRestart:
		h.disconnect(ctx, "restart")
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.opts.RestartDelay):
		}
		h.connect(ctx, out, "restart")

	case envelope.KindConnected, envelope.KindCommonInterests:
		h.logger.Debug("peer status", "kind", string(env.Kind()))

	case "":
		h.logger.Error("rejected envelope with no kind")

	default:
		h.logger.Warn("ignoring envelope", "kind", string(env.Kind()))
	}
}

// translate turns one client event into at most one Envelope.
func (h *Host) translate(ctx context.Context, ev omegle.Event, out chan<- envelope.Envelope) {
	switch ev.Type {
	case omegle.EventConnected:
		h.logger.Info("stranger matched")
		h.armIdle()

	case omegle.EventMessage:
		h.stopIdle()
		h.logger.Info("got message from stranger", "text", ev.Text)
		h.emit(ctx, out, envelope.Message(ev.Text))

	case omegle.EventTyping:
		h.emit(ctx, out, envelope.Signal(envelope.KindTyping))

	case omegle.EventStoppedTyping:
		h.emit(ctx, out, envelope.Signal(envelope.KindStoppedTyping))

	case omegle.EventStrangerDisconnected:
		h.stopIdle()
		h.logger.Info("stranger disconnected")
		h.emit(ctx, out, envelope.Signal(envelope.KindDisconnected))

	case omegle.EventCommonLikes:
		h.emit(ctx, out, envelope.CommonInterests(ev.Likes))

	case omegle.EventError:
		h.stopIdle()
		h.logger.Error("service ended session with error", "message", ev.Text)
		h.emit(ctx, out, envelope.Signal(envelope.KindConnectionError))

	case omegle.EventPollFailed:
		h.stopIdle()
		h.logger.Error("polling gave up", "error", ev.Err)
		h.emit(ctx, out, envelope.Signal(envelope.KindConnectionError))

	case omegle.EventRecaptchaRequired, omegle.EventRecaptchaRejected:
		h.logger.Warn("service requires a captcha", "event", ev.Type.String(), "challenge", ev.Text)

	case omegle.EventBanned:
		h.stopIdle()
		h.logger.Warn("banned by service")

	default:
		h.logger.Debug("session event", "event", ev.Type.String())
	}
}

func (h *Host) connect(ctx context.Context, out chan<- envelope.Envelope, reason string) {
	if err := h.client.Connect(ctx, h.topics); err != nil {
		h.logger.Error("connection failed", "reason", reason, "error", err)
		h.emit(ctx, out, envelope.Signal(envelope.KindConnectionError))
		return
	}
	h.logger.Info("connected", "reason", reason, "topics", h.topics)
	h.emit(ctx, out, envelope.Signal(envelope.KindConnected))
}

// disconnect ends the session and discards events the stopped poll left behind.
func (h *Host) disconnect(ctx context.Context, reason string) {
	h.stopIdle()
	if err := h.client.Disconnect(ctx); err != nil {
		h.logger.Error("disconnect failed", "reason", reason, "error", err)
	} else {
		h.logger.Info("disconnected", "reason", reason)
	}
	h.drain()
}

func (h *Host) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	h.disconnect(ctx, "shutdown")
}

func (h *Host) drain() {
	for {
		select {
		case ev := <-h.client.Events():
			h.logger.Debug("dropping stale event", "event", ev.Type.String())
		default:
			return
		}
	}
}

func (h *Host) emit(ctx context.Context, out chan<- envelope.Envelope, env envelope.Envelope) {
	select {
	case out <- env:
	case <-ctx.Done():
	}
}

func (h *Host) armIdle() {
	h.stopIdle()
	if h.opts.IdleTimeout <= 0 {
		return
	}
	h.idle = time.NewTimer(h.opts.IdleTimeout)
	h.idleC = h.idle.C
}

func (h *Host) stopIdle() {
	if h.idle != nil {
		h.idle.Stop()
		h.idle = nil
	}
	h.idleC = nil
}
