package chain

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"banca-client/pkg/cache"
	"banca-client/pkg/logging"
	"banca-client/pkg/metrics"
	"banca-client/pkg/resilience"
	"banca-client/pkg/writer"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader fetches a value from the system of record on a chain miss.
type Loader func(ctx context.Context) ([]byte, error)

// Config tunes a Chain. The zero value is usable.
type Config struct {
	// TTLStrategy spreads an entry's TTL across layers (default: uniform)
	TTLStrategy TTLStrategy

	// WarmupTTL is the base TTL for entries copied upward after a lower-layer
	// hit; the remaining TTL of the hit is unknown (default: 30s)
	WarmupTTL time.Duration

	// L1Timeout bounds operations on the first layer (default: 100ms)
	L1Timeout time.Duration

	// LayerTimeout bounds operations on every deeper layer (default: 1s)
	LayerTimeout time.Duration

	// LoadTimeout bounds a collapsed lookup, loader included. The shared
	// call does not stop when one of its callers goes away (default: 30s)
	LoadTimeout time.Duration

	// Writer configures the warm-up writers
	Writer writer.AsyncWriterConfig

	Metrics metrics.MetricsCollector
	Logger  *logging.Logger
}

// Chain is a read-through cache over layers ordered fastest (L1) to slowest.
// Every layer is wrapped with a resilience guard; concurrent loads of the same
// key collapse into one.
type Chain struct {
	layers   []cache.CacheLayer
	writers  []*writer.AsyncWriter
	sf       singleflight.Group
	strategy TTLStrategy
	warmTTL  time.Duration
	loadTTL  time.Duration
	metrics  metrics.MetricsCollector
	logger   *logging.Logger
}

// New creates a chain with the default configuration.
func New(layers ...cache.CacheLayer) (*Chain, error) {
	return NewWithConfig(Config{}, layers...)
}

// NewWithConfig creates a chain. At least one layer is required.
func NewWithConfig(config Config, layers ...cache.CacheLayer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}

	if config.TTLStrategy == nil {
		config.TTLStrategy = UniformTTLStrategy{}
	}
	if config.WarmupTTL <= 0 {
		config.WarmupTTL = 30 * time.Second
	}
	if config.L1Timeout <= 0 {
		config.L1Timeout = 100 * time.Millisecond
	}
	if config.LayerTimeout <= 0 {
		config.LayerTimeout = time.Second
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 30 * time.Second
	}
	collector := metrics.OrNoOp(config.Metrics)

	c := &Chain{
		layers:   make([]cache.CacheLayer, len(layers)),
		writers:  make([]*writer.AsyncWriter, len(layers)),
		strategy: config.TTLStrategy,
		warmTTL:  config.WarmupTTL,
		loadTTL:  config.LoadTimeout,
		metrics:  collector,
		logger:   logging.OrGlobal(config.Logger, "chain"),
	}

	for i, layer := range layers {
		timeout := config.LayerTimeout
		if i == 0 {
			timeout = config.L1Timeout
		}
		resilient := resilience.NewResilientLayerWithMetrics(layer,
			resilience.DefaultResilientConfig().WithTimeout(timeout), collector)

		c.layers[i] = resilient
		c.writers[i] = writer.NewAsyncWriterWithMetrics(resilient, config.Writer, collector)
	}

	c.logger.Info("cache chain initialized", zap.String("layers", c.String()))
	return c, nil
}

// Get returns the value from the first layer that has it and warms the
// layers above it in the background.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return c.shared(ctx, "get:"+key, func(ctx context.Context) ([]byte, error) {
		return c.getWithFallback(ctx, key)
	})
}

// GetOrLoad returns the cached value for key or, on a miss, calls load and
// stores its result in every layer with ttl spread by the TTL strategy.
// Layer errors degrade to a load; load errors are returned and not cached.
func (c *Chain) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return c.shared(ctx, "load:"+key, func(ctx context.Context) ([]byte, error) {
		value, err := c.getWithFallback(ctx, key)
		if err == nil {
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !cache.IsNotFound(err) {
			c.logger.Warn("cache unavailable, loading from source",
				zap.String("key", key),
				zap.String("error_type", cache.ClassifyError(err)),
			)
		}

		value, err = load(ctx)
		if err != nil {
			return nil, err
		}

		if setErr := c.Set(ctx, key, value, ttl); setErr != nil {
			c.logger.Warn("failed to populate cache",
				zap.String("key", key),
				zap.Error(setErr),
			)
		}
		return value, nil
	})
}

// shared runs fn once for concurrent callers of the same key. fn runs
// under its own LoadTimeout, detached from the first caller's
// cancellation; each caller stops waiting when its own ctx ends.
func (c *Chain) shared(ctx context.Context, key string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTTL)
		defer cancel()
		return fn(sctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Chain) getWithFallback(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	var errs error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			if !cache.IsNotFound(err) {
				errs = multierr.Append(errs, cache.WrapError(err, layer.Name(), "get"))
			}
			continue
		}

		c.metrics.RecordChainGet(true, i, time.Since(start))
		if i > 0 {
			c.warmUpperLayers(ctx, key, value, i)
		}
		return value, nil
	}

	c.metrics.RecordChainGet(false, -1, time.Since(start))

	// Every layer either missed or failed. A miss anywhere wins over errors:
	// the caller should load rather than treat the cache as broken.
	if errs != nil && len(multierr.Errors(errs)) == len(c.layers) {
		return nil, errs
	}
	return nil, cache.ErrKeyNotFound
}

func (c *Chain) warmUpperLayers(ctx context.Context, key string, value []byte, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		ttl := c.strategy.GetTTL(i, len(c.layers), c.warmTTL)
		if err := c.writers[i].Write(ctx, key, value, ttl); err != nil {
			c.logger.Debug("warm-up write not queued",
				zap.String("layer", c.layers[i].Name()),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}

// Set writes value to every layer. All layers are attempted; failures are
// combined.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var errs error
	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		layerTTL := c.strategy.GetTTL(i, len(c.layers), ttl)
		if err := layer.Set(ctx, key, value, layerTTL); err != nil {
			errs = multierr.Append(errs, cache.WrapError(err, layer.Name(), "set"))
		}
	}
	return errs
}

// Delete removes keys from every layer and detaches them from in-flight loads.
func (c *Chain) Delete(ctx context.Context, keys ...string) error {
	var errs error
	for _, key := range keys {
		c.sf.Forget("get:" + key)
		c.sf.Forget("load:" + key)

		for _, layer := range c.layers {
			if err := layer.Delete(ctx, key); err != nil {
				errs = multierr.Append(errs, cache.WrapError(err, layer.Name(), "delete"))
			}
		}
	}
	return errs
}

// Flush waits for pending warm-up writes.
func (c *Chain) Flush(timeout time.Duration) error {
	var errs error
	for _, w := range c.writers {
		errs = multierr.Append(errs, w.Flush(timeout))
	}
	return errs
}

// Close stops the warm-up writers and closes every layer.
func (c *Chain) Close() error {
	var errs error
	for _, w := range c.writers {
		errs = multierr.Append(errs, w.Close())
	}
	for _, layer := range c.layers {
		errs = multierr.Append(errs, layer.Close())
	}
	return errs
}

// WriterStats returns the warm-up writer statistics keyed by layer name.
func (c *Chain) WriterStats() map[string]writer.AsyncWriterStats {
	stats := make(map[string]writer.AsyncWriterStats, len(c.writers))
	for i, w := range c.writers {
		stats[c.layers[i].Name()] = w.Stats()
	}
	return stats
}

// Layers returns a copy of the (guarded) layers.
func (c *Chain) Layers() []cache.CacheLayer {
	layers := make([]cache.CacheLayer, len(c.layers))
	copy(layers, c.layers)
	return layers
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

// String describes the chain, e.g. "chain(2 layers): L1 -> redis".
func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return "chain(" + strconv.Itoa(len(c.layers)) + " layers): " + strings.Join(names, " -> ")
}
