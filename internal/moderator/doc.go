// Package moderator is the relay's control channel: it parses moderator
// commands and posts relay notices.
//
// Commands start with a prefix ("!" by default):
//
//	!topic [words...]   set the topics for the next chat; no words clears them
//	!retry              drop both strangers and search again
//	!saya [words...]    speak as Person A (delivered to B's stranger)
//	!sayb [words...]    speak as Person B (delivered to A's stranger)
//
// The Matrix type carries both directions over a single Matrix room.
package moderator
