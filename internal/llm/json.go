package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls a JSON object out of a model response. It tries the
// whole response first, then the first fenced code block. Structured
// consumers use this because models often wrap JSON in prose or fences.
func ExtractJSON(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if isJSONObject(trimmed) {
		return json.RawMessage(trimmed), true
	}

	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(trimmed, fence)
		if start < 0 {
			continue
		}
		rest := trimmed[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		candidate := strings.TrimSpace(rest[:end])
		if isJSONObject(candidate) {
			return json.RawMessage(candidate), true
		}
	}

	// Last resort: the outermost brace pair.
	if open := strings.Index(trimmed, "{"); open >= 0 {
		if close := strings.LastIndex(trimmed, "}"); close > open {
			candidate := trimmed[open : close+1]
			if isJSONObject(candidate) {
				return json.RawMessage(candidate), true
			}
		}
	}
	return nil, false
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var probe map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &probe) == nil
}
