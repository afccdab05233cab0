// ABOUTME: Recurring /events poll for one session
// ABOUTME: Cancels itself on terminal events and after a streak of transport failures

package omegle

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// poll dispatches the handshake's first events, then polls on a ticker until
// ctx is cancelled or the session ends.
func (c *Client) poll(ctx context.Context, sess *session, initial []json.RawMessage, done chan struct{}) {
	defer close(done)

	if c.dispatch(ctx, initial) {
		return
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var records []json.RawMessage
		err := c.post(ctx, sess, "/events", url.Values{"id": {sess.clientID}}, &records)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.logger.Warn("poll failed",
				"server", sess.params.BaseURL,
				"consecutive_failures", failures,
				"error", err,
			)
			if c.opts.PollFailureThreshold > 0 && failures >= c.opts.PollFailureThreshold {
				c.emit(ctx, Event{Type: EventPollFailed, Err: err})
				return
			}
			continue
		}
		failures = 0

		if c.dispatch(ctx, records) {
			return
		}
	}
}

// dispatch emits an Event per known record. It reports true when a
// terminal event was seen, which ends the poll.
func (c *Client) dispatch(ctx context.Context, records []json.RawMessage) bool {
	for _, raw := range records {
		ev, ok := parseRecord(raw)
		if !ok {
			c.logger.Debug("ignoring unknown event record", "record", string(raw))
			continue
		}
		if !c.emit(ctx, ev) {
			return true
		}
		if ev.Terminal() {
			c.logger.Info("session ended by service", "event", ev.Type.String())
			return true
		}
	}
	return false
}

// emit delivers ev unless the poll has been cancelled.
func (c *Client) emit(ctx context.Context, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
