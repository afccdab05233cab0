// ABOUTME: Markdown rendering for notices posted to the moderator room
// ABOUTME: Converts notice markdown to Matrix HTML with goldmark

package moderator

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
)

// RenderHTML converts notice markdown to HTML. A notice that is a single
// paragraph is returned without the surrounding <p> element.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	html := strings.TrimSpace(buf.String())
	if inner, ok := strings.CutPrefix(html, "<p>"); ok && strings.Count(html, "<p>") == 1 {
		if inner, ok = strings.CutSuffix(inner, "</p>"); ok {
			return inner, nil
		}
	}
	return html, nil
}
