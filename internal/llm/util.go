// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// CleanText strips code fences and one pair of wrapping quotes from a
// plain-text generation.
func CleanText(text string) string {
	text = stripFence(strings.TrimSpace(text))
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			text = strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	return text
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Skip potential language identifier on first line
	if idx := strings.Index(text, "\n"); idx >= 0 {
		firstLine := text[:idx]
		if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
