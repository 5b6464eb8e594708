package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/xxxsen/proposal/internal/model"
)

// EncodeContext serializes the intermediate results of a generation so the
// client can send them back with a regenerate request.
func EncodeContext(extraction *model.JobExtraction, analysis *model.TechnicalAnalysis) (string, error) {
	data, err := json.Marshal(&model.ProposalContext{
		JobExtraction:     extraction,
		TechnicalAnalysis: analysis,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseContext reports whether s holds a usable context. Both parts must be
// present.
func ParseContext(s string) (*model.ProposalContext, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	out := &model.ProposalContext{}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return nil, false
	}
	if out.JobExtraction == nil || out.TechnicalAnalysis == nil {
		return nil, false
	}
	return out, true
}
