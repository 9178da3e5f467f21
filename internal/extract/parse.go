package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseResponse leniently parses an LLM reply into a JSON object. Models
// wrap JSON in code fences or prose often enough that a strict
// json.Unmarshal of the whole reply would reject usable answers.
func ParseResponse(text string) (map[string]any, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}

	// Fall back to the outermost brace pair when prose surrounds the object.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, eris.New("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &out); err != nil {
		return nil, eris.Wrap(err, "parse response JSON")
	}
	return out, nil
}
