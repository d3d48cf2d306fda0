package engine

import (
	"encoding/json"
	"strings"

	"github.com/yangwenmai/amigo/internal/model"
)

// Analysis is the parsed model output.
type Analysis struct {
	Summary  string         `json:"summary"`
	Category model.Category `json:"category"`
}

// ParseAnalysis decodes the model's JSON reply. Output that is not JSON is
// kept whole as the summary with the default category. Unknown categories are
// coerced to the default.
func ParseAnalysis(raw string) Analysis {
	var out struct {
		Summary  string `json:"summary"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return Analysis{Summary: strings.TrimSpace(raw), Category: model.DefaultCategory}
	}
	return Analysis{
		Summary:  strings.TrimSpace(out.Summary),
		Category: model.ParseCategory(out.Category),
	}
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
