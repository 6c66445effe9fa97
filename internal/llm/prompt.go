package llm

import (
	"strconv"
	"strings"

	"github.com/jonathan/feed-copilot/internal/prompts"
)

// BuildOutreachPrompt asks for a short, friendly first message to someone
// with the given profile titles.
func BuildOutreachPrompt(titles string) string {
	return prompts.Format(prompts.MustGet(prompts.Outreach, "first-message"), map[string]string{
		"Titles": strconv.Quote(strings.TrimSpace(titles)),
	})
}
