package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/config"
	appErr "github.com/xxxsen/proposal/internal/pkg/errors"
)

// breakerGenerator stops calling a model once its recent failure ratio
// crosses the configured threshold, so a fallback entry gets used directly.
type breakerGenerator struct {
	next IGenerator
	cb   *gobreaker.CircuitBreaker[string]
}

func newBreakerSettings(name string, cfg config.BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && ratio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logutil.GetLogger(context.Background()).Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// A missing key or a cancelled request says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, appErr.ErrUnavailable) ||
				errors.Is(err, context.Canceled)
		},
	}
}

func NewBreakerGenerator(name string, next IGenerator, cfg config.BreakerConfig) IGenerator {
	if !cfg.Enabled || next == nil {
		return next
	}
	return &breakerGenerator{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[string](newBreakerSettings(name, cfg)),
	}
}

func (b *breakerGenerator) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	res, err := b.cb.Execute(func() (string, error) {
		return b.next.Chat(ctx, req)
	})
	return res, breakerErr(b.cb.Name(), err)
}

func (b *breakerGenerator) ModelName() string {
	return b.next.ModelName()
}

type breakerEmbedder struct {
	next IEmbedder
	cb   *gobreaker.CircuitBreaker[[]float32]
}

func NewBreakerEmbedder(name string, next IEmbedder, cfg config.BreakerConfig) IEmbedder {
	if !cfg.Enabled || next == nil {
		return next
	}
	return &breakerEmbedder{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[[]float32](newBreakerSettings(name, cfg)),
	}
}

func (b *breakerEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := b.cb.Execute(func() ([]float32, error) {
		return b.next.Embed(ctx, text, taskType)
	})
	return res, breakerErr(b.cb.Name(), err)
}

func (b *breakerEmbedder) ModelName() string {
	return b.next.ModelName()
}

func breakerErr(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", appErr.ErrUpstream, name, err)
	}
	return err
}
