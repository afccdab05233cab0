// ABOUTME: Tests for the session host loop, local links and the stdio bridge
// ABOUTME: Uses a scripted fake client plus the omegletest service for an end-to-end check

package host

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/stranger-relay/internal/envelope"
	"github.com/2389/stranger-relay/internal/omegle"
	"github.com/2389/stranger-relay/internal/omegle/omegletest"
)

type fakeClient struct {
	mu          sync.Mutex
	calls       []string
	topics      [][]string
	sent        []string
	connectErrs []error
	sendErr     error
	events      chan omegle.Event
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan omegle.Event, 16)}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeClient) Connect(_ context.Context, topics []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "connect")
	f.topics = append(f.topics, topics)
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeClient) Disconnect(context.Context) error {
	f.record("disconnect")
	return nil
}

func (f *fakeClient) SendMessage(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "send")
	f.sent = append(f.sent, text)
	return f.sendErr
}

func (f *fakeClient) SetTyping(_ context.Context, typing bool) error {
	if typing {
		f.record("typing")
	} else {
		f.record("stopped_typing")
	}
	return nil
}

func (f *fakeClient) Events() <-chan omegle.Event { return f.events }

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) Topics() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.topics...)
}

func (f *fakeClient) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type harness struct {
	link *LocalLink
}

func startHost(t *testing.T, client SessionClient, opts Options) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if opts.RestartDelay == 0 {
		opts.RestartDelay = 10 * time.Millisecond
	}
	h := &harness{link: StartLocal(ctx, client, opts)}
	t.Cleanup(func() {
		cancel()
		_ = h.link.Wait()
	})
	return h
}

func (h *harness) send(t *testing.T, env envelope.Envelope) {
	t.Helper()
	require.NoError(t, h.link.Send(context.Background(), env))
}

func (h *harness) next(t *testing.T) envelope.Envelope {
	t.Helper()
	select {
	case env := <-h.link.Events():
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return envelope.Envelope{}
	}
}

func (h *harness) assertQuiet(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case env := <-h.link.Events():
		t.Fatalf("unexpected envelope %s", env)
	case <-time.After(wait):
	}
}

func TestRun_ConnectsAtStart(t *testing.T) {
	client := newFakeClient()
	h := startHost(t, client, Options{Side: "A", InitialTopics: []string{"cats"}})

	assert.Equal(t, envelope.KindConnected, h.next(t).Kind())
	assert.Equal(t, [][]string{{"cats"}}, client.Topics())
}

func TestRun_StartupFailureEmitsConnectionError(t *testing.T) {
	client := newFakeClient()
	client.connectErrs = []error{&omegle.ConnectError{BaseURL: "http://x", Err: errors.New("boom")}}
	h := startHost(t, client, Options{Side: "A"})

	assert.Equal(t, envelope.KindConnectionError, h.next(t).Kind())
}

func TestRun_TranslatesClientEvents(t *testing.T) {
	client := newFakeClient()
	h := startHost(t, client, Options{Side: "B"})
	require.Equal(t, envelope.KindConnected, h.next(t).Kind())

	client.events <- omegle.Event{Type: omegle.EventWaiting}
	client.events <- omegle.Event{Type: omegle.EventConnected}
	client.events <- omegle.Event{Type: omegle.EventTyping}
	client.events <- omegle.Event{Type: omegle.EventMessage, Text: "hi"}
	client.events <- omegle.Event{Type: omegle.EventStoppedTyping}
	client.events <- omegle.Event{Type: omegle.EventCommonLikes, Likes: []string{"a", "b"}}
	client.events <- omegle.Event{Type: omegle.EventRecaptchaRequired, Text: "challenge"}
	client.events <- omegle.Event{Type: omegle.EventStrangerDisconnected}

	assert.Equal(t, envelope.Signal(envelope.KindTyping), h.next(t))
	assert.Equal(t, envelope.Message("hi"), h.next(t))
	assert.Equal(t, envelope.Signal(envelope.KindStoppedTyping), h.next(t))
	assert.Equal(t, envelope.CommonInterests([]string{"a", "b"}), h.next(t))
	assert.Equal(t, envelope.Signal(envelope.KindDisconnected), h.next(t))
	h.assertQuiet(t, 50*time.Millisecond)
}

func TestRun_SessionEndingEventsBecomeConnectionError(t *testing.T) {
	for _, ev := range []omegle.Event{
		{Type: omegle.EventError, Text: "server overloaded"},
		{Type: omegle.EventPollFailed, Err: errors.New("dead")},
	} {
		t.Run(ev.Type.String(), func(t *testing.T) {
			client := newFakeClient()
			h := startHost(t, client, Options{Side: "A"})
			require.Equal(t, envelope.KindConnected, h.next(t).Kind())

			client.events <- ev
			assert.Equal(t, envelope.KindConnectionError, h.next(t).Kind())
		})
	}
}

func TestRun_AppliesControlEnvelopes(t *testing.T) {
	client := newFakeClient()
	h := startHost(t, client, Options{Side: "A"})
	require.Equal(t, envelope.KindConnected, h.next(t).Kind())

	h.send(t, envelope.Signal(envelope.KindTyping))
	h.send(t, envelope.Message("hello"))
	h.send(t, envelope.Signal(envelope.KindStoppedTyping))
	h.send(t, envelope.Signal(envelope.KindKill))

	assert.Eventually(t, func() bool { return len(client.Calls()) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"connect", "typing", "send", "stopped_typing", "disconnect"}, client.Calls())
	assert.Equal(t, []string{"hello"}, client.Sent())
	h.assertQuiet(t, 50*time.Millisecond)
}

func TestRun_RestartReconnectsOnceWithCurrentTopics(t *testing.T) {
	client := newFakeClient()
	h := startHost(t, client, Options{Side: "A", InitialTopics: []string{"old"}})
	require.Equal(t, envelope.KindConnected, h.next(t).Kind())

	h.send(t, envelope.SetTopics([]string{"foo", "bar"}))
	h.send(t, envelope.Signal(envelope.KindRestart))

	assert.Equal(t, envelope.KindConnected, h.next(t).Kind())
	assert.Equal(t, []string{"connect", "disconnect", "connect"}, client.Calls())
	assert.Equal(t, [][]string{{"old"}, {"foo", "bar"}}, client.Topics())
	h.assertQuiet(t, 50*time.Millisecond)
}

func TestRun_RestartAfterFailedConnectRetries(t *testing.T) {
	client := newFakeClient()
	client.connectErrs = []error{errors.New("down")}
	h := startHost(t, client, Options{Side: "A"})
	require.Equal(t, envelope.KindConnectionError, h.next(t).Kind())

	h.send(t, envelope.Signal(envelope.KindRestart))
	assert.Equal(t, envelope.KindConnected, h.next(t).Kind())
}

func TestRun_IgnoresBadControlInput(t *testing.T) {
	client := newFakeClient()
	h := startHost(t, client, Options{Side: "A"})
	require.Equal(t, envelope.KindConnected, h.next(t).Kind())

	h.send(t, envelope.Envelope{})
	h.send(t, envelope.Signal(envelope.KindConnected))
	h.send(t, envelope.CommonInterests([]string{"x"}))
	h.send(t, envelope.Signal(envelope.KindDisconnected))
	h.send(t, envelope.Message("still alive"))

	assert.Eventually(t, func() bool { return len(client.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"connect", "send"}, client.Calls())
}

func TestRun_PeerStatusLoggedAtDebug(t *testing.T) {
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	client := newFakeClient()
	h := startHost(t, client, Options{Side: "B", Logger: logger})
	require.Equal(t, envelope.KindConnected, h.next(t).Kind())

	h.send(t, envelope.Signal(envelope.KindConnected))
	h.send(t, envelope.CommonInterests([]string{"chess"}))
	h.send(t, envelope.Message("sync"))

	assert.Eventually(t, func() bool { return len(client.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.NotContains(t, logs.String(), "ignoring envelope")
	assert.NotContains(t, logs.String(), "level=WARN")
}

func TestRun_SendFailureDoesNotRestart(t *testing.T) {
	client := newFakeClient()
	client.sendErr = &omegle.TransportError{Op: "send", Err: errors.New("reset")}
	h := startHost(t, client, Options{Side: "A"})
	require.Equal(t, envelope.KindConnected, h.next(t).Kind())

	h.send(t, envelope.Message("lost"))
	h.assertQuiet(t, 50*time.Millisecond)
	assert.Equal(t, []string{"connect", "send"}, client.Calls())
}

func TestRun_IdleHook(t *testing.T) {
	t.Run("fires once without messages", func(t *testing.T) {
		client := newFakeClient()
		h := startHost(t, client, Options{Side: "A", IdleTimeout: 30 * time.Millisecond})
		require.Equal(t, envelope.KindConnected, h.next(t).Kind())

		client.events <- omegle.Event{Type: omegle.EventConnected}
		assert.Equal(t, envelope.KindIdle, h.next(t).Kind())
		h.assertQuiet(t, 80*time.Millisecond)
	})

	t.Run("cancelled by a message", func(t *testing.T) {
		client := newFakeClient()
		h := startHost(t, client, Options{Side: "A", IdleTimeout: 60 * time.Millisecond})
		require.Equal(t, envelope.KindConnected, h.next(t).Kind())

		client.events <- omegle.Event{Type: omegle.EventConnected}
		client.events <- omegle.Event{Type: omegle.EventMessage, Text: "hey"}
		assert.Equal(t, envelope.Message("hey"), h.next(t))
		h.assertQuiet(t, 120*time.Millisecond)
	})

	t.Run("not armed while waiting for a match", func(t *testing.T) {
		client := newFakeClient()
		h := startHost(t, client, Options{Side: "A", IdleTimeout: 30 * time.Millisecond})
		require.Equal(t, envelope.KindConnected, h.next(t).Kind())

		client.events <- omegle.Event{Type: omegle.EventWaiting}
		h.assertQuiet(t, 100*time.Millisecond)

		client.events <- omegle.Event{Type: omegle.EventConnected}
		assert.Equal(t, envelope.KindIdle, h.next(t).Kind())
	})

	t.Run("disabled by default", func(t *testing.T) {
		client := newFakeClient()
		h := startHost(t, client, Options{Side: "A"})
		require.Equal(t, envelope.KindConnected, h.next(t).Kind())

		client.events <- omegle.Event{Type: omegle.EventConnected}
		h.assertQuiet(t, 50*time.Millisecond)
	})
}

func TestRun_ShutdownDisconnects(t *testing.T) {
	client := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	link := StartLocal(ctx, client, Options{Side: "A"})
	<-link.Events()

	cancel()
	assert.ErrorIs(t, link.Wait(), context.Canceled)
	assert.Equal(t, []string{"connect", "disconnect"}, client.Calls())
	assert.ErrorIs(t, link.Send(context.Background(), envelope.Message("late")), ErrLinkClosed)
}

func TestRun_AgainstFakeService(t *testing.T) {
	fake := omegletest.NewBotServer(omegletest.Bot{
		Greeting: "hello there",
		Likes:    []string{"go", "chess"},
		Reply:    func(msg string) string { return "you said " + msg },
	})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := omegle.New(omegle.Options{BaseURL: srv.URL, PollInterval: 10 * time.Millisecond})
	h := startHost(t, client, Options{Side: "A", InitialTopics: []string{"go"}})

	assert.Equal(t, envelope.KindConnected, h.next(t).Kind())
	assert.Equal(t, envelope.CommonInterests([]string{"go"}), h.next(t))
	assert.Equal(t, envelope.Message("hello there"), h.next(t))

	h.send(t, envelope.Message("ping"))
	assert.Equal(t, envelope.Signal(envelope.KindTyping), h.next(t))
	assert.Equal(t, envelope.Message("you said ping"), h.next(t))
}

func TestServeStdio_BridgesEnvelopes(t *testing.T) {
	client := newFakeClient()
	in := strings.NewReader(
		`{"kind":"MESSAGE","payload":"hi"}` + "\n" +
			"not json\n" +
			`{"kind":"KILL"}` + "\n")
	var out syncBuffer

	err := ServeStdio(context.Background(), in, &out, client, Options{Side: "A"})
	require.NoError(t, err)

	assert.Equal(t, []string{"connect", "send", "disconnect", "disconnect"}, client.Calls())
	assert.Equal(t, []string{"hi"}, client.Sent())

	dec := envelope.NewDecoder(strings.NewReader(out.String()))
	env, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, envelope.KindConnected, env.Kind())
	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
