package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/ai"
)

// WithMemory keeps recent embeddings in an expiring LRU. Regenerating a
// proposal for the same job text then skips the embedding call.
func WithMemory(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &memoryEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type memoryEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (m *memoryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := newCacheKey(m.next.ModelName(), taskType, text).String()
	if cached, ok := m.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding served from memory", zap.String("task_type", taskType))
		return cloneVector(cached), nil
	}
	vec, err := m.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, cloneVector(vec))
	return vec, nil
}

func (m *memoryEmbedder) ModelName() string {
	return m.next.ModelName()
}
