package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting client metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory, etc.).
type MetricsCollector interface {
	// Cache operations
	RecordGet(layer string, hit bool, duration time.Duration)
	RecordSet(layer string, success bool, duration time.Duration)
	RecordDelete(layer string, success bool, duration time.Duration)

	// Circuit breaker
	RecordCircuitState(name string, state CircuitState)

	// Async writer
	RecordQueueDepth(layer string, depth int)
	RecordWriteDropped(layer string)
	RecordAsyncWrite(layer string, success bool, duration time.Duration)

	// Chain-level
	RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration)

	// Backend client. class is one of the Class* constants.
	RecordRequest(endpoint string, class string, duration time.Duration)

	// Transfer pipeline
	RecordTransferAttempt(retry bool)
	RecordTransferOutcome(status string, reason string, duration time.Duration)
}

// Request classes reported by the backend client.
const (
	ClassOK              = "ok"
	ClassTransient       = "transient"
	ClassRejected        = "rejected"
	ClassUnauthenticated = "unauthenticated"
	ClassCanceled        = "canceled"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the service has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OrNoOp returns c, or a NoOpCollector when c is nil.
func OrNoOp(c MetricsCollector) MetricsCollector {
	if c == nil {
		return NoOpCollector{}
	}
	return c
}

// NoOpCollector is a no-op implementation of MetricsCollector.
// It's used as the default collector when metrics are not needed.
type NoOpCollector struct{}

// RecordGet does nothing.
func (NoOpCollector) RecordGet(layer string, hit bool, duration time.Duration) {}

// RecordSet does nothing.
func (NoOpCollector) RecordSet(layer string, success bool, duration time.Duration) {}

// RecordDelete does nothing.
func (NoOpCollector) RecordDelete(layer string, success bool, duration time.Duration) {}

// RecordCircuitState does nothing.
func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

// RecordQueueDepth does nothing.
func (NoOpCollector) RecordQueueDepth(layer string, depth int) {}

// RecordWriteDropped does nothing.
func (NoOpCollector) RecordWriteDropped(layer string) {}

// RecordAsyncWrite does nothing.
func (NoOpCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {}

// RecordChainGet does nothing.
func (NoOpCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {}

// RecordRequest does nothing.
func (NoOpCollector) RecordRequest(endpoint string, class string, duration time.Duration) {}

// RecordTransferAttempt does nothing.
func (NoOpCollector) RecordTransferAttempt(retry bool) {}

// RecordTransferOutcome does nothing.
func (NoOpCollector) RecordTransferOutcome(status string, reason string, duration time.Duration) {}
