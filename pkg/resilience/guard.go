package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banca-client/pkg/cache"
	"banca-client/pkg/logging"
	"banca-client/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Errors returned by Guard.Do. They alias the cache sentinels so callers
// classify guarded cache and backend calls the same way.
var (
	ErrCircuitOpen = cache.ErrCircuitOpen
	ErrTimeout     = cache.ErrTimeout
)

// Guard runs calls under a per-call timeout and a circuit breaker.
type Guard struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.MetricsCollector
	logger  *logging.Logger
}

type guardOptions struct {
	metrics metrics.MetricsCollector
	logger  *logging.Logger
	ignore  func(error) bool
}

// GuardOption configures a Guard.
type GuardOption func(*guardOptions)

// WithMetrics reports breaker state changes to m.
func WithMetrics(m metrics.MetricsCollector) GuardOption {
	return func(o *guardOptions) { o.metrics = m }
}

// WithLogger sets the logger; defaults to the global logger.
func WithLogger(l *logging.Logger) GuardOption {
	return func(o *guardOptions) { o.logger = l }
}

// WithIgnoredErrors marks errors that are returned to the caller but not
// counted as breaker failures (a cache miss, a rejected request).
func WithIgnoredErrors(ignore func(error) bool) GuardOption {
	return func(o *guardOptions) { o.ignore = ignore }
}

// NewGuard creates a guard named name.
func NewGuard(name string, config ResilientConfig, opts ...GuardOption) *Guard {
	o := guardOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Guard{
		name:    name,
		timeout: config.Timeout,
		metrics: metrics.OrNoOp(o.metrics),
		logger:  logging.OrGlobal(o.logger, "resilience").Named(name),
	}

	cbConfig := config.CircuitBreakerConfig
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cbConfig.MaxRequests,
		Interval:    cbConfig.Interval,
		Timeout:     cbConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			c := Counts{
				Requests:             counts.Requests,
				TotalSuccesses:       counts.TotalSuccesses,
				TotalFailures:        counts.TotalFailures,
				ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
				ConsecutiveFailures:  counts.ConsecutiveFailures,
			}
			if cbConfig.ReadyToTrip != nil {
				return cbConfig.ReadyToTrip(c)
			}
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return o.ignore != nil && o.ignore(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			g.metrics.RecordCircuitState(name, circuitState(to))
		},
	}

	g.cb = gobreaker.NewCircuitBreaker(settings)

	g.logger.Debug("guard initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", cbConfig.MaxRequests),
		zap.Duration("circuit_interval", cbConfig.Interval),
		zap.Duration("circuit_timeout", cbConfig.Timeout),
	)

	return g
}

// Do runs fn through the breaker with the guard's timeout applied to the
// context fn receives. An open breaker yields ErrCircuitOpen without
// calling fn. If fn overran the guard's own deadline the result is
// ErrTimeout. If the caller's ctx ended, its error is returned as is.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, fn(callCtx)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", g.name, ErrCircuitOpen)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		g.logger.Warn("operation timeout", zap.Duration("timeout", g.timeout))
		return fmt.Errorf("%s: %w after %s", g.name, ErrTimeout, g.timeout)
	}
	return err
}

// Name returns the guard name.
func (g *Guard) Name() string {
	return g.name
}

// State returns the breaker state.
func (g *Guard) State() metrics.CircuitState {
	return circuitState(g.cb.State())
}

// Counts returns the breaker's counts for the current interval.
func (g *Guard) Counts() Counts {
	c := g.cb.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}
