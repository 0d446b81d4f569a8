package quizai

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairJSON makes a best-effort attempt to turn near-valid model output
// (code fences, trailing commas, unquoted keys, truncation) into valid JSON.
// The trimmed input is returned unchanged when repair fails or the result is
// neither an object nor an array.
func RepairJSON(content string) string {
	content = strings.TrimSpace(content)
	candidate := stripCodeFence(content)

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return content
	}

	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return content
	}
	switch v.(type) {
	case map[string]any, []any:
	default:
		return content
	}

	normalized, err := json.Marshal(v)
	if err != nil {
		return content
	}
	return string(normalized)
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// drop the language tag line, e.g. ```json
		s = s[idx+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
