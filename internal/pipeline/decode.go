package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

// decodeObject reads the JSON object a model returned. Markdown fences and
// text around the outermost braces are dropped before decoding.
func decodeObject(stage string, output string, dst interface{}) error {
	clean := strings.TrimSpace(output)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start < 0 || end <= start {
		return malformed(stage, "no json object in output")
	}
	if err := json.Unmarshal([]byte(clean[start:end+1]), dst); err != nil {
		return malformed(stage, err.Error())
	}
	return nil
}

func malformed(stage string, reason string) error {
	return fmt.Errorf("%w: %s: %s", appErr.ErrMalformedOutput, stage, reason)
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
