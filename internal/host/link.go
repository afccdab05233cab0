// ABOUTME: Link abstraction between the orchestrator and one session host
// ABOUTME: Local links run the host in a goroutine of the current process

package host

import (
	"context"
	"errors"

	"github.com/2389/stranger-relay/internal/envelope"
)

// ErrLinkClosed is returned by Send after the host behind a link has stopped.
var ErrLinkClosed = errors.New("host link closed")

const linkBuffer = 32

// Link carries Envelopes to and from one host, FIFO in each direction.
type Link interface {
	Send(ctx context.Context, env envelope.Envelope) error
	Events() <-chan envelope.Envelope
}

// LocalLink runs a Host in a goroutine.
type LocalLink struct {
	in   chan envelope.Envelope
	out  chan envelope.Envelope
	done chan struct{}
	err  error
}

// StartLocal starts a Host around client and returns its link. The host
// stops when ctx is cancelled.
func StartLocal(ctx context.Context, client SessionClient, opts Options) *LocalLink {
	l := &LocalLink{
		in:   make(chan envelope.Envelope, linkBuffer),
		out:  make(chan envelope.Envelope, linkBuffer),
		done: make(chan struct{}),
	}
	h := New(client, opts)
	go func() {
		defer close(l.done)
		l.err = h.Run(ctx, l.in, l.out)
	}()
	return l
}

// Send queues env for the host.
func (l *LocalLink) Send(ctx context.Context, env envelope.Envelope) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}
	select {
	case l.in <- env:
		return nil
	case <-l.done:
		return ErrLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns Envelopes produced by the host.
func (l *LocalLink) Events() <-chan envelope.Envelope {
	return l.out
}

// Wait blocks until the host stops and returns its Run error.
func (l *LocalLink) Wait() error {
	<-l.done
	return l.err
}
