// ABOUTME: Moderator notices produced by the relay and the personas that post them
// ABOUTME: Notice text is markdown; the moderator channel decides how to render it

package relay

import (
	"strings"
)

// Persona is who a notice appears to come from.
type Persona int

const (
	PersonaRelay Persona = iota
	PersonaA
	PersonaB
)

// PersonaOf returns the persona that speaks for side.
func PersonaOf(side Side) Persona {
	if side == SideA {
		return PersonaA
	}
	return PersonaB
}

func (p Persona) String() string {
	switch p {
	case PersonaA:
		return "a"
	case PersonaB:
		return "b"
	default:
		return "relay"
	}
}

// Notice is a markdown message for the moderator channel.
type Notice struct {
	Persona  Persona
	Markdown string
}

func connectedNotice(topics []string) Notice {
	return relayNotice("**_Connected to new chat partners..._**" + topicSuffix(topics))
}

func searchingNotice(topics []string) Notice {
	return relayNotice("**_Looking for new chat partners..._**" + topicSuffix(topics))
}

func disconnectedNotice(side Side) Notice {
	return relayNotice("**Person " + side.String() + "** disconnected.")
}

func errorNotice() Notice {
	return relayNotice("**_Error connecting to chat service. Retrying..._**")
}

func retryNotice() Notice {
	return relayNotice("**_Disconnected from chat partners. Retrying..._**")
}

func commonInterestsNotice(likes []string) Notice {
	return relayNotice("You both like: " + joinWrapped(likes, "_"))
}

func topicsNotice(topics []string) Notice {
	if len(topics) == 0 {
		return relayNotice("Topics cleared for next chat.")
	}
	return relayNotice("Topics set for next chat: " + joinWrapped(topics, "_") + ".")
}

// personaNotice relays a stranger's words verbatim in a code block.
func personaNotice(side Side, text string) Notice {
	return Notice{Persona: PersonaOf(side), Markdown: "```\n" + text + "\n```"}
}

func relayNotice(markdown string) Notice {
	return Notice{Persona: PersonaRelay, Markdown: markdown}
}

func topicSuffix(topics []string) string {
	if len(topics) == 0 {
		return ""
	}
	return " (" + joinWrapped(topics, "**") + ")"
}

func joinWrapped(items []string, mark string) string {
	wrapped := make([]string, len(items))
	for i, item := range items {
		wrapped[i] = mark + item + mark
	}
	return strings.Join(wrapped, ", ")
}
