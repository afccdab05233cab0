// Package omegle implements a client for the polling-based anonymous chat
// protocol: one Client holds one chat session with one stranger.
//
// # Lifecycle
//
//	c := omegle.New(omegle.Options{Logger: logger})
//	if err := c.Connect(ctx, []string{"music"}); err != nil {
//	    // *ConnectError
//	}
//	for ev := range c.Events() { ... }
//	_ = c.Disconnect(ctx)
//
// Connect draws fresh connection parameters every time: an 8 character
// identity token, a server from the pool, and (optionally) a local source
// address. After a successful handshake the client polls /events on a fixed
// interval until Disconnect, or until the service ends the session with
// strangerDisconnected, error or antinudeBanned.
//
// # Events
//
// Events() returns one channel that lives as long as the Client, across
// reconnects. Each polled record [tag, args...] becomes exactly one Event.
// Unknown tags are ignored.
//
// # Poll Failures
//
// Transport errors while polling are counted. After PollFailureThreshold
// consecutive failures the client emits EventPollFailed and stops polling.
// A threshold of zero disables this and failed polls are only logged.
package omegle
