package service

import (
	"strings"
	"unicode"
)

// sanitizePromptInput cleans untrusted issue text before it is interpolated
// into a runner prompt.
func sanitizePromptInput(s string) string {
	// Strip non-printable control characters (keep newlines, tabs, spaces).
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	// Remove common prompt injection role markers at line beginnings.
	// These could trick the agent into treating issue data as system
	// instructions.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.ToLower(line))
		for _, prefix := range []string{
			"system:", "assistant:", "user:", "[system]", "[assistant]",
			"<|system|>", "<|assistant|>", "<|im_start|>",
			"### system", "### assistant", "### instruction",
		} {
			if strings.HasPrefix(trimmed, prefix) {
				// Replace the role marker prefix with a safe escaped version.
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	s = strings.Join(lines, "\n")

	// Enforce a reasonable length limit to prevent context flooding.
	const maxInputLen = 10000
	if len(s) > maxInputLen {
		s = s[:maxInputLen] + "\n[truncated]"
	}

	return s
}
