// Package dedupe remembers recently handled event IDs so that events a
// homeserver delivers twice are only acted on once.
package dedupe
