// ABOUTME: Tests for the orchestrator loop with fake links, notifier and observers
// ABOUTME: Checks action ordering, notice gating, command handling and lifecycle hooks

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/stranger-relay/internal/envelope"
)

// journal records every effect in the order the loop performed it.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeLink struct {
	side    Side
	j       *journal
	events  chan envelope.Envelope
	sendErr error
}

func newFakeLink(side Side, j *journal) *fakeLink {
	return &fakeLink{side: side, j: j, events: make(chan envelope.Envelope, 16)}
}

func (l *fakeLink) Send(_ context.Context, env envelope.Envelope) error {
	if l.sendErr != nil {
		return l.sendErr
	}
	l.j.add("send %s %s", l.side, env)
	return nil
}

func (l *fakeLink) Events() <-chan envelope.Envelope { return l.events }

type fakeNotifier struct {
	j    *journal
	gate chan struct{}
	err  error
}

func (n *fakeNotifier) Post(ctx context.Context, notice Notice) error {
	if n.gate != nil {
		select {
		case <-n.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.j.add("post %s %s", notice.Persona, notice.Markdown)
	return n.err
}

type fakeObserver struct {
	j *journal
}

func (o *fakeObserver) SessionStarted(_ context.Context, id string, topics []string) {
	o.j.add("started %s %v", id, topics)
}

func (o *fakeObserver) SessionEnded(_ context.Context, id string, reason EndReason, side Side) {
	o.j.add("ended %s %s %s", id, reason, side)
}

func (o *fakeObserver) TopicsChanged(_ context.Context, topics []string) {
	o.j.add("topics %v", topics)
}

type rig struct {
	j        *journal
	a, b     *fakeLink
	notifier *fakeNotifier
	orch     *Orchestrator
	errc     chan error
	cancel   context.CancelFunc
}

func startRig(t *testing.T, configure func(*Options)) *rig {
	t.Helper()
	j := &journal{}
	r := &rig{
		j:        j,
		a:        newFakeLink(SideA, j),
		b:        newFakeLink(SideB, j),
		notifier: &fakeNotifier{j: j},
		errc:     make(chan error, 1),
	}
	opts := Options{
		A:            r.a,
		B:            r.b,
		Notifier:     r.notifier,
		Observers:    []Observer{&fakeObserver{j: j}},
		NewSessionID: func() string { return "sess-1" },
	}
	if configure != nil {
		configure(&opts)
	}
	r.orch = New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() { r.errc <- r.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-r.errc
	})
	return r
}

func (r *rig) waitFor(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.j.list()) >= n }, 2*time.Second, 2*time.Millisecond,
		"journal: %v", r.j.list())
	return r.j.list()
}

func TestOrchestrator_ConnectRelayDisconnect(t *testing.T) {
	r := startRig(t, nil)

	r.a.events <- envelope.Signal(envelope.KindConnected)
	r.a.events <- envelope.Message("hi")
	r.waitFor(t, 4)
	r.b.events <- envelope.Signal(envelope.KindDisconnected)

	got := r.waitFor(t, 11)
	assert.Equal(t, []string{
		"started sess-1 []",
		"post relay **_Connected to new chat partners..._**",
		`send B MESSAGE("hi")`,
		"post a ```\nhi\n```",
		"post relay **Person B** disconnected.",
		"send A KILL",
		"send B KILL",
		"ended sess-1 disconnected B",
		"post relay **_Looking for new chat partners..._**",
		"send A RESTART",
		"send B RESTART",
	}, got)
}

func TestOrchestrator_SearchingNoticeGatesRestart(t *testing.T) {
	gate := make(chan struct{})
	r := startRig(t, func(o *Options) {
		o.Notifier.(*fakeNotifier).gate = gate
	})

	r.a.events <- envelope.Signal(envelope.KindConnected)
	gate <- struct{}{}
	r.waitFor(t, 2)

	r.a.events <- envelope.Signal(envelope.KindIdle)
	r.waitFor(t, 3)
	// The "searching" post is blocked, so neither host may be restarted yet.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, r.j.list(), 3)

	gate <- struct{}{}
	got := r.waitFor(t, 6)
	assert.Equal(t, []string{
		"started sess-1 []",
		"post relay **_Connected to new chat partners..._**",
		"ended sess-1 idle A",
		"post relay **_Looking for new chat partners..._**",
		"send A RESTART",
		"send B RESTART",
	}, got)
}

func TestOrchestrator_FailedNoticeStillRestarts(t *testing.T) {
	r := startRig(t, nil)
	r.notifier.err = errors.New("matrix down")

	r.a.events <- envelope.Signal(envelope.KindConnected)
	r.waitFor(t, 2)
	r.b.events <- envelope.Signal(envelope.KindConnectionError)

	got := r.waitFor(t, 9)
	assert.Equal(t, "send A RESTART", got[7])
	assert.Equal(t, "send B RESTART", got[8])
}

func TestOrchestrator_SendFailureContinues(t *testing.T) {
	r := startRig(t, nil)
	r.a.sendErr = errors.New("link down")

	require.NoError(t, r.orch.Submit(context.Background(), RetryCommand{}))

	got := r.waitFor(t, 4)
	assert.Equal(t, []string{
		"post relay **_Disconnected from chat partners. Retrying..._**",
		"send B KILL",
		"post relay **_Looking for new chat partners..._**",
		"send B RESTART",
	}, got)
}

func TestOrchestrator_Commands(t *testing.T) {
	r := startRig(t, func(o *Options) { o.Topics = []string{"seed"} })
	ctx := context.Background()

	require.NoError(t, r.orch.Submit(ctx, InjectCommand{As: SideA, Text: "too early"}))
	require.NoError(t, r.orch.Submit(ctx, SetTopicsCommand{Topics: []string{"foo", "bar"}}))
	r.b.events <- envelope.Signal(envelope.KindConnected)
	r.waitFor(t, 6)
	require.NoError(t, r.orch.Submit(ctx, InjectCommand{As: SideA, Text: "psst"}))

	got := r.waitFor(t, 8)
	assert.Equal(t, []string{
		"send A SET_TOPICS([foo bar])",
		"send B SET_TOPICS([foo bar])",
		"topics [foo bar]",
		"post relay Topics set for next chat: _foo_, _bar_.",
		"started sess-1 [foo bar]",
		"post relay **_Connected to new chat partners..._** (**foo**, **bar**)",
		"post a ```\npsst\n```",
		`send B MESSAGE("psst")`,
	}, got)
}

func TestOrchestrator_DropsMalformedEnvelopes(t *testing.T) {
	r := startRig(t, nil)

	r.a.events <- envelope.Envelope{}
	r.a.events <- envelope.Signal(envelope.KindConnected)

	got := r.waitFor(t, 2)
	assert.Equal(t, "started sess-1 []", got[0])
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	r := startRig(t, nil)
	r.cancel()
	assert.ErrorIs(t, <-r.errc, context.Canceled)
	r.errc <- nil

	assert.ErrorIs(t, r.orch.Submit(context.Background(), RetryCommand{}), ErrStopped)
}

type countingTraffic struct {
	mu       sync.Mutex
	received map[string]int
	sent     map[string]int
	failed   int
}

func (c *countingTraffic) EnvelopeReceived(from Side, kind envelope.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received[from.String()+" "+string(kind)]++
}

func (c *countingTraffic) EnvelopeSent(to Side, kind envelope.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[to.String()+" "+string(kind)]++
}

func (c *countingTraffic) NoticePosted(_ Persona, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed++
	}
}

func TestOrchestrator_RecordsTraffic(t *testing.T) {
	traffic := &countingTraffic{received: map[string]int{}, sent: map[string]int{}}
	r := startRig(t, func(o *Options) { o.Traffic = traffic })

	r.a.events <- envelope.Signal(envelope.KindConnected)
	r.a.events <- envelope.Message("one")
	r.a.events <- envelope.Message("two")
	r.waitFor(t, 6)

	traffic.mu.Lock()
	defer traffic.mu.Unlock()
	assert.Equal(t, 2, traffic.received["A MESSAGE"])
	assert.Equal(t, 1, traffic.received["A CONNECTED"])
	assert.Equal(t, 2, traffic.sent["B MESSAGE"])
	assert.Zero(t, traffic.failed)
}
