// Package host runs one chat session in isolation and bridges it to
// Envelopes.
//
// # Host
//
// A Host owns one protocol client. Run connects it, turns every client
// event into an Envelope for the orchestrator, and applies the control
// Envelopes it receives:
//
//	MESSAGE          -> SendMessage(text)
//	TYPING           -> SetTyping(true)
//	STOPPED_TYPING   -> SetTyping(false)
//	SET_TOPICS       -> topics for the next connect
//	KILL             -> Disconnect, no reconnect
//	RESTART          -> Disconnect, wait RestartDelay, Connect
//
// Anything else is logged and dropped. Failed sends and typing calls are
// logged and never end the session.
//
// # Links
//
// The orchestrator talks to a host through a Link: a FIFO pair of Envelope
// channels. StartLocal runs the host in a goroutine of the current process.
// StartProcess runs it in a child process (the relay binary's "host"
// subcommand, served by ServeStdio) and speaks JSON lines over its stdin and
// stdout. A child that exits unexpectedly is reported as CONNECTION_ERROR
// and started again in place.
package host
