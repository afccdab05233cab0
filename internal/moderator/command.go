// ABOUTME: Moderator command parser turning chat text into relay commands
// ABOUTME: Recognises topic, retry, saya and sayb behind a configurable prefix

package moderator

import (
	"context"
	"strings"
	"unicode"

	"github.com/2389/stranger-relay/internal/relay"
)

// DefaultPrefix starts every command.
const DefaultPrefix = "!"

// Handler receives parsed commands. *relay.Orchestrator implements it.
type Handler interface {
	Submit(ctx context.Context, cmd relay.Command) error
}

// Parse reads one moderator message. ok is false when text is not a command.
func Parse(prefix, text string) (cmd relay.Command, ok bool) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	text = strings.TrimSpace(text)
	rest, found := strings.CutPrefix(text, prefix)
	if !found {
		return nil, false
	}

	name, args := splitWord(rest)
	switch strings.ToLower(name) {
	case "topic":
		topics := strings.Fields(args)
		if len(topics) == 0 {
			topics = nil
		}
		return relay.SetTopicsCommand{Topics: topics}, true
	case "retry":
		return relay.RetryCommand{}, true
	case "saya":
		return relay.InjectCommand{As: relay.SideA, Text: args}, true
	case "sayb":
		return relay.InjectCommand{As: relay.SideB, Text: args}, true
	default:
		return nil, false
	}
}

// splitWord returns the first word of s and the trimmed remainder, keeping
// the remainder's inner spacing.
func splitWord(s string) (word, rest string) {
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s, ""
	}
	return s[:end], strings.TrimSpace(s[end:])
}
