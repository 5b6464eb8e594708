package ai

import (
	"context"
	"fmt"

	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

type dimensionChecked struct {
	next IEmbedder
	dim  int
}

// NewDimensionChecked rejects vectors whose length differs from the column
// width of the vector store.
func NewDimensionChecked(next IEmbedder, dim int) IEmbedder {
	return &dimensionChecked{next: next, dim: dim}
}

func (d *dimensionChecked) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vec, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(vec) != d.dim {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, want %d", appErr.ErrUpstream, len(vec), d.dim)
	}
	return vec, nil
}

func (d *dimensionChecked) ModelName() string {
	return d.next.ModelName()
}
