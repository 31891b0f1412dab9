package core

import "strings"

// ValidatePrompt trims the raw message text and checks it against the
// configured length bound. The prompt is passed through otherwise untouched:
// rewording is the generation service's business, not ours.
func ValidatePrompt(raw string, maxLen int) (string, error) {
	prompt := strings.TrimSpace(raw)
	if prompt == "" {
		return "", &GenError{Kind: KindInvalidPrompt, Message: "empty"}
	}
	if maxLen > 0 && len([]rune(prompt)) > maxLen {
		return "", &GenError{Kind: KindInvalidPrompt, Message: "too_long"}
	}
	return prompt, nil
}
