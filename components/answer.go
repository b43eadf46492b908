package components

import (
	"encoding/json"
	"strings"
)

// ExtractAnswer returns the JSON document carried by free-form model text. Markdown code
// fences and text around the outermost object are dropped. Text without an object is
// returned as is so that validation can report it.
func ExtractAnswer(text string) json.RawMessage {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate)
		}
	}
	return json.RawMessage(text)
}
