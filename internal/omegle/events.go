// ABOUTME: Decoded chat service events and the poll record parser
// ABOUTME: Maps each [tag, ...args] record to exactly one Event

package omegle

import (
	"encoding/json"
	"fmt"
)

// EventType identifies an Event.
type EventType int

const (
	EventWaiting EventType = iota + 1
	EventConnected
	EventMessage
	EventTyping
	EventStoppedTyping
	EventStrangerDisconnected
	EventCommonLikes
	EventRecaptchaRequired
	EventRecaptchaRejected
	EventBanned
	EventError
	// EventPollFailed is emitted once when polling gives up after repeated
	// transport failures. It is generated locally, never by the service.
	EventPollFailed
)

var eventNames = map[EventType]string{
	EventWaiting:              "waiting",
	EventConnected:            "connected",
	EventMessage:              "gotMessage",
	EventTyping:               "typing",
	EventStoppedTyping:        "stoppedTyping",
	EventStrangerDisconnected: "strangerDisconnected",
	EventCommonLikes:          "commonLikes",
	EventRecaptchaRequired:    "recaptchaRequired",
	EventRecaptchaRejected:    "recaptchaRejected",
	EventBanned:               "antinudeBanned",
	EventError:                "error",
	EventPollFailed:           "pollFailed",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is one notification from the chat session.
type Event struct {
	Type EventType
	// Text holds the message, recaptcha challenge or error message.
	Text string
	// Likes holds the shared interests of a commonLikes event.
	Likes []string
	// Err holds the last transport error of an EventPollFailed.
	Err error
}

// Terminal reports whether the service has ended the session with this event.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventStrangerDisconnected, EventError, EventBanned, EventPollFailed:
		return true
	}
	return false
}

// parseRecord decodes one poll record. ok is false for unknown tags and
// malformed records.
func parseRecord(raw json.RawMessage) (ev Event, ok bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return Event{}, false
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return Event{}, false
	}
	args := parts[1:]

	switch tag {
	case "waiting":
		return Event{Type: EventWaiting}, true
	case "connected":
		return Event{Type: EventConnected}, true
	case "gotMessage":
		return Event{Type: EventMessage, Text: stringArg(args)}, true
	case "typing":
		return Event{Type: EventTyping}, true
	case "stoppedTyping":
		return Event{Type: EventStoppedTyping}, true
	case "strangerDisconnected":
		return Event{Type: EventStrangerDisconnected}, true
	case "commonLikes":
		return Event{Type: EventCommonLikes, Likes: listArg(args)}, true
	case "recaptchaRequired":
		return Event{Type: EventRecaptchaRequired, Text: stringArg(args)}, true
	case "recaptchaRejected":
		return Event{Type: EventRecaptchaRejected, Text: stringArg(args)}, true
	case "antinudeBanned":
		return Event{Type: EventBanned}, true
	case "error":
		return Event{Type: EventError, Text: stringArg(args)}, true
	}
	return Event{}, false
}

func stringArg(args []json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[0], &s); err != nil {
		return ""
	}
	return s
}

func listArg(args []json.RawMessage) []string {
	if len(args) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(args[0], &list); err != nil {
		return []string{}
	}
	return list
}
