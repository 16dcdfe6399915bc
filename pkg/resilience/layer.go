package resilience

import (
	"context"
	"time"

	"banca-client/pkg/cache"
	"banca-client/pkg/metrics"

	"go.uber.org/zap"
)

// ResilientLayer wraps a CacheLayer with a Guard. Cache misses pass
// through without counting against the breaker.
type ResilientLayer struct {
	layer   cache.CacheLayer
	guard   *Guard
	metrics metrics.MetricsCollector
}

// NewResilientLayer wraps layer with a NoOp metrics collector.
func NewResilientLayer(layer cache.CacheLayer, config ResilientConfig) *ResilientLayer {
	return NewResilientLayerWithMetrics(layer, config, nil)
}

// NewResilientLayerWithMetrics wraps layer and reports to metricsCollector.
func NewResilientLayerWithMetrics(layer cache.CacheLayer, config ResilientConfig, metricsCollector metrics.MetricsCollector) *ResilientLayer {
	metricsCollector = metrics.OrNoOp(metricsCollector)
	return &ResilientLayer{
		layer:   layer,
		metrics: metricsCollector,
		guard: NewGuard("cache."+layer.Name(), config,
			WithMetrics(metricsCollector),
			WithIgnoredErrors(cache.IsNotFound),
		),
	}
}

// Name returns the name of the underlying cache layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// Guard exposes the layer's guard, for state inspection.
func (rl *ResilientLayer) Guard() *Guard {
	return rl.guard
}

// Get reads through the guard.
func (rl *ResilientLayer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	var value []byte
	err := rl.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		value, err = rl.layer.Get(ctx, key)
		return err
	})

	rl.metrics.RecordGet(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		if !cache.IsNotFound(err) {
			rl.guard.logger.Warn("get failed",
				zap.String("key", key),
				zap.String("error_type", cache.ClassifyError(err)),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return value, nil
}

// Set writes through the guard.
func (rl *ResilientLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()

	err := rl.guard.Do(ctx, func(ctx context.Context) error {
		return rl.layer.Set(ctx, key, value, ttl)
	})

	rl.metrics.RecordSet(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		rl.guard.logger.Warn("set failed",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.String("error_type", cache.ClassifyError(err)),
			zap.Error(err),
		)
	}
	return err
}

// Delete removes through the guard.
func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := rl.guard.Do(ctx, func(ctx context.Context) error {
		return rl.layer.Delete(ctx, key)
	})

	rl.metrics.RecordDelete(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		rl.guard.logger.Warn("delete failed",
			zap.String("key", key),
			zap.String("error_type", cache.ClassifyError(err)),
			zap.Error(err),
		)
	}
	return err
}

// Close closes the underlying cache layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}
