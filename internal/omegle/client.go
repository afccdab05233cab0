// ABOUTME: Chat protocol client holding one session against the external service
// ABOUTME: Handshake, actions (send, typing, disconnect, recaptcha) and the HTTP plumbing

package omegle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPollInterval is how often /events is polled.
	DefaultPollInterval = 2500 * time.Millisecond
	// DefaultRequestTimeout bounds a single HTTP request.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultPollFailureThreshold is the failure streak that ends polling.
	DefaultPollFailureThreshold = 5

	eventBufferSize = 64
)

// Recorder observes every request made to the service.
type Recorder interface {
	ObserveRequest(endpoint string, d time.Duration, err error)
}

// Options configures a Client. Zero durations fall back to the defaults
// above; a zero PollFailureThreshold disables dead-poll detection.
type Options struct {
	// Servers is the pool one server is drawn from per attempt.
	Servers []string
	// BaseURL, when set, replaces the pool (e.g. "http://127.0.0.1:8090").
	BaseURL string
	// LocalAddresses is the pool of local source IPs drawn from per attempt.
	LocalAddresses []string

	PollInterval         time.Duration
	RequestTimeout       time.Duration
	PollFailureThreshold int

	// HTTPClient overrides the per-address clients. LocalAddresses is
	// ignored when set.
	HTTPClient *http.Client
	Recorder   Recorder
	Logger     *slog.Logger
}

// session is the state of one successful handshake. A poll goroutine only
// ever sees its own session, so a reconnect cannot leak into a stale poll.
type session struct {
	params   ConnectionParams
	clientID string
	http     *http.Client
}

// Client speaks the chat protocol for one session at a time.
type Client struct {
	opts   Options
	logger *slog.Logger
	events chan Event

	mu       sync.Mutex
	current  *session
	stopPoll context.CancelFunc
	pollDone chan struct{}
	clients  map[string]*http.Client
}

// New creates a disconnected Client.
func New(opts Options) *Client {
	if len(opts.Servers) == 0 {
		opts.Servers = DefaultServers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.PollFailureThreshold < 0 {
		opts.PollFailureThreshold = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:    opts,
		logger:  logger.With("component", "omegle"),
		events:  make(chan Event, eventBufferSize),
		clients: make(map[string]*http.Client),
	}
}

// Events returns the channel every session event is delivered on.
func (c *Client) Events() <-chan Event {
	return c.events
}

type startResponse struct {
	ClientID string            `json:"clientID"`
	Events   []json.RawMessage `json:"events"`
}

// Connect starts a new session with the given topics. Any session already
// running is dropped locally first. Failures return *ConnectError.
func (c *Client) Connect(ctx context.Context, topics []string) error {
	c.stopPolling()

	params := c.drawParams()
	sess := &session{params: params, http: c.httpClient(params.LocalAddress)}

	endpoint := "/start?rcs=1&firstevents=1&spid=&randid=" + params.RandID
	if len(topics) > 0 {
		encoded, err := json.Marshal(topics)
		if err != nil {
			return &ConnectError{BaseURL: params.BaseURL, Err: fmt.Errorf("encoding topics: %w", err)}
		}
		endpoint += "&topics=" + url.QueryEscape(string(encoded))
	}

	var resp startResponse
	if err := c.post(ctx, sess, endpoint, nil, &resp); err != nil {
		return &ConnectError{BaseURL: params.BaseURL, Err: err}
	}
	if resp.ClientID == "" {
		return &ConnectError{BaseURL: params.BaseURL, Err: errMissingClientID}
	}
	sess.clientID = resp.ClientID

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.current = sess
	c.stopPoll = cancel
	c.pollDone = done
	c.mu.Unlock()

	c.logger.Info("session started",
		"server", params.BaseURL,
		"randid", params.RandID,
		"local_address", params.LocalAddress,
		"topics", topics,
	)

	go c.poll(pollCtx, sess, resp.Events, done)
	return nil
}

// Disconnect stops polling and tells the service the session is over. The
// client is disconnected locally even when the request fails.
func (c *Client) Disconnect(ctx context.Context) error {
	sess := c.stopPolling()
	if sess == nil {
		return nil
	}
	if err := c.post(ctx, sess, "/disconnect", url.Values{"id": {sess.clientID}}, nil); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	c.logger.Info("session disconnected", "server", sess.params.BaseURL)
	return nil
}

// SendMessage sends text to the stranger.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.action(ctx, "send", "/send", url.Values{"msg": {text}})
}

// SetTyping reports our typing state.
func (c *Client) SetTyping(ctx context.Context, typing bool) error {
	if typing {
		return c.action(ctx, "typing", "/typing", url.Values{})
	}
	return c.action(ctx, "stopped typing", "/stoppedtyping", url.Values{})
}

// SubmitRecaptcha answers a recaptchaRequired challenge.
func (c *Client) SubmitRecaptcha(ctx context.Context, challenge, answer string) error {
	return c.action(ctx, "recaptcha", "/recaptcha", url.Values{
		"challenge": {challenge},
		"response":  {answer},
	})
}

// Params returns the parameters of the current session, if any.
func (c *Client) Params() (ConnectionParams, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ConnectionParams{}, false
	}
	return c.current.params, true
}

// ClientID returns the server issued identifier of the current session.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.clientID
}

func (c *Client) action(ctx context.Context, op, endpoint string, form url.Values) error {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()
	if sess == nil {
		return &TransportError{Op: op, Err: ErrNotConnected}
	}
	form.Set("id", sess.clientID)
	if err := c.post(ctx, sess, endpoint, form, nil); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return nil
}

// stopPolling cancels the running poll, waits for it to exit and clears the
// session. Calling it with nothing running is a no-op.
func (c *Client) stopPolling() *session {
	c.mu.Lock()
	sess := c.current
	cancel := c.stopPoll
	done := c.pollDone
	c.current = nil
	c.stopPoll = nil
	c.pollDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return sess
}

// post issues a form POST and decodes a JSON response into out when non-nil.
func (c *Client) post(ctx context.Context, sess *session, endpoint string, form url.Values, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	name := endpointName(endpoint)
	start := time.Now()
	defer func() {
		if c.opts.Recorder != nil {
			c.opts.Recorder.ObserveRequest(name, time.Since(start), err)
		}
	}()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sess.params.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := sess.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Endpoint: name, Code: resp.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	// an empty body decodes as no content
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s response: %w", name, err)
	}
	return nil
}

// httpClient returns a client bound to localAddr, reusing one per address.
func (c *Client) httpClient(localAddr string) *http.Client {
	if c.opts.HTTPClient != nil {
		return c.opts.HTTPClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.clients[localAddr]; ok {
		return hc
	}

	dialer := &net.Dialer{Timeout: c.opts.RequestTimeout, KeepAlive: 30 * time.Second}
	if localAddr != "" {
		dialer.LocalAddr = &net.TCPAddr{IP: net.ParseIP(localAddr)}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext

	hc := &http.Client{Transport: transport}
	c.clients[localAddr] = hc
	return hc
}

// endpointName strips the query string for logs and metrics.
func endpointName(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
