package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/model"
)

type Store interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// WithStore persists embeddings so they survive restarts. A failed write is
// logged and the fresh vector is still returned.
func WithStore(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &storeEmbedder{next: e, store: store, now: time.Now}
}

type storeEmbedder struct {
	next  ai.IEmbedder
	store Store
	now   func() time.Time
}

func (s *storeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := newCacheKey(s.next.ModelName(), taskType, text)
	vec, ok, err := s.store.Get(ctx, key.model, key.taskType, key.hash)
	if err != nil {
		return nil, err
	}
	if ok {
		logutil.GetLogger(ctx).Debug("embedding served from store", zap.String("task_type", taskType))
		return vec, nil
	}
	vec, err = s.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, &model.EmbeddingCache{
		ModelName:   key.model,
		TaskType:    key.taskType,
		ContentHash: key.hash,
		Embedding:   vec,
		Ctime:       s.now().UnixMilli(),
	}); err != nil {
		logutil.GetLogger(ctx).Warn("save embedding to store failed", zap.Error(err))
	}
	return vec, nil
}

func (s *storeEmbedder) ModelName() string {
	return s.next.ModelName()
}
