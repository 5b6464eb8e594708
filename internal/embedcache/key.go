package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// cacheKey identifies one embedding. Vectors from different models or task
// types are never interchangeable, so both are part of the key.
type cacheKey struct {
	model    string
	taskType string
	hash     string
}

func newCacheKey(modelName, taskType, text string) cacheKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	sum := sha256.Sum256([]byte(text))
	return cacheKey{model: modelName, taskType: taskType, hash: hex.EncodeToString(sum[:])}
}

func (k cacheKey) String() string {
	return k.model + ":" + k.taskType + ":" + k.hash
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float32, len(values))
	copy(out, values)
	return out
}
