package pipeline

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/model"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

type ProfileFinder interface {
	NearestByUser(ctx context.Context, userID string, vec []float32, k int) ([]string, error)
	GetByID(ctx context.Context, id string) (*model.Profile, error)
}

type Retrieval struct {
	Profile      *model.Profile
	JobEmbedding []float32
}

// Retriever finds the owner's CV closest to a job posting. Each owner keeps
// a single profile, so the nearest neighbour is that profile when it exists.
type Retriever struct {
	embedder ai.IEmbedder
	profiles ProfileFinder
}

func NewRetriever(embedder ai.IEmbedder, profiles ProfileFinder) *Retriever {
	return &Retriever{embedder: embedder, profiles: profiles}
}

func (r *Retriever) Retrieve(ctx context.Context, userID string, job string) (*Retrieval, error) {
	vec, err := r.embedder.Embed(ctx, job, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed job description: %w", err)
	}
	ids, err := r.profiles.NearestByUser(ctx, userID, vec, 1)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, appErr.ErrProfileNotFound
	}
	profile, err := r.profiles.GetByID(ctx, ids[0])
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.ErrProfileNotFound
		}
		return nil, err
	}
	logutil.GetLogger(ctx).Debug("profile retrieved",
		zap.String("user_id", userID),
		zap.String("profile_id", profile.ID))
	return &Retrieval{Profile: profile, JobEmbedding: vec}, nil
}
