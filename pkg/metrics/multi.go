package metrics

import "time"

// Multi forwards every record to each collector, e.g. the Prometheus
// collector and the in-memory one behind /metrics/json.
type Multi []MetricsCollector

func (m Multi) each(fn func(MetricsCollector)) {
	for _, c := range m {
		if c != nil {
			fn(c)
		}
	}
}

// RecordGet forwards to every collector.
func (m Multi) RecordGet(layer string, hit bool, duration time.Duration) {
	m.each(func(c MetricsCollector) { c.RecordGet(layer, hit, duration) })
}

// RecordSet forwards to every collector.
func (m Multi) RecordSet(layer string, success bool, duration time.Duration) {
	m.each(func(c MetricsCollector) { c.RecordSet(layer, success, duration) })
}

// RecordDelete forwards to every collector.
func (m Multi) RecordDelete(layer string, success bool, duration time.Duration) {
	m.each(func(c MetricsCollector) { c.RecordDelete(layer, success, duration) })
}

// RecordCircuitState forwards to every collector.
func (m Multi) RecordCircuitState(name string, state CircuitState) {
	m.each(func(c MetricsCollector) { c.RecordCircuitState(name, state) })
}

// RecordQueueDepth forwards to every collector.
func (m Multi) RecordQueueDepth(layer string, depth int) {
	m.each(func(c MetricsCollector) { c.RecordQueueDepth(layer, depth) })
}

// RecordWriteDropped forwards to every collector.
func (m Multi) RecordWriteDropped(layer string) {
	m.each(func(c MetricsCollector) { c.RecordWriteDropped(layer) })
}

// RecordAsyncWrite forwards to every collector.
func (m Multi) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	m.each(func(c MetricsCollector) { c.RecordAsyncWrite(layer, success, duration) })
}

// RecordChainGet forwards to every collector.
func (m Multi) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	m.each(func(c MetricsCollector) { c.RecordChainGet(hit, layerIndex, totalDuration) })
}

// RecordRequest forwards to every collector.
func (m Multi) RecordRequest(endpoint string, class string, duration time.Duration) {
	m.each(func(c MetricsCollector) { c.RecordRequest(endpoint, class, duration) })
}

// RecordTransferAttempt forwards to every collector.
func (m Multi) RecordTransferAttempt(retry bool) {
	m.each(func(c MetricsCollector) { c.RecordTransferAttempt(retry) })
}

// RecordTransferOutcome forwards to every collector.
func (m Multi) RecordTransferOutcome(status string, reason string, duration time.Duration) {
	m.each(func(c MetricsCollector) { c.RecordTransferOutcome(status, reason, duration) })
}
