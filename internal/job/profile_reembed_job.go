package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type reembedder interface {
	ReembedStale(ctx context.Context, batch int) (int, error)
}

// ProfileReembedJob moves profiles embedded by an older model onto the
// configured one so retrieval compares vectors of the same space.
type ProfileReembedJob struct {
	profiles reembedder
	batch    int
}

func NewProfileReembedJob(profiles reembedder, batch int) *ProfileReembedJob {
	return &ProfileReembedJob{profiles: profiles, batch: batch}
}

func (j *ProfileReembedJob) Name() string {
	return "profile_reembed"
}

func (j *ProfileReembedJob) Run(ctx context.Context) error {
	n, err := j.profiles.ReembedStale(ctx, j.batch)
	if n > 0 {
		logutil.GetLogger(ctx).Info("profiles re-embedded", zap.Int("count", n))
	}
	return err
}
