// Package relay links two session hosts into one conversation.
//
// The state machine is a pure function:
//
//	Step(State, Input) (State, []Action)
//
// Inputs are Envelopes from host A or B and moderator Commands. Actions are
// Posts to the moderator channel, Sends to a host and lifecycle markers for
// observers. The Orchestrator is the only caller of Step; it reads one Input at
// a time and executes the returned Actions strictly in order, so a Post
// finishes before the Send that follows it. Recovery relies on that: the
// "searching" notice is always out before either host is told to RESTART.
//
// The joint session becomes active on the first CONNECTED from either side,
// not when both have connected.
package relay
