// Package envelope defines the tagged value exchanged between the relay
// orchestrator and its two session hosts.
//
// # Kinds
//
// The set of kinds is closed:
//
//	CONNECTED, TYPING, STOPPED_TYPING, DISCONNECTED, MESSAGE, IDLE,
//	CONNECTION_ERROR, RESTART, SET_TOPICS, COMMON_INTERESTS, KILL
//
// MESSAGE carries a string payload. SET_TOPICS and COMMON_INTERESTS carry a
// list of strings. Every other kind has no payload.
//
// # Immutability
//
// An Envelope is a value. Its fields are unexported, and list payloads are
// copied when an Envelope is built and again when they are read, so no two
// components ever share a live payload.
//
// # Wire Format
//
// Across a process boundary each Envelope is one JSON object per line:
//
//	{"kind":"MESSAGE","payload":"hi"}
//	{"kind":"SET_TOPICS","payload":["music","films"]}
//	{"kind":"KILL","payload":null}
//
// Decoding rejects unknown kinds with ErrUnknownKind and a missing kind with
// ErrMissingKind.
package envelope
