package memory

import (
	"sync"
	"time"

	"banca-client/pkg/metrics"
)

// MemoryCollector implements MetricsCollector in memory. It backs the
// gateway's /metrics/json endpoint and the package tests.
type MemoryCollector struct {
	mu sync.RWMutex

	// Per-layer cache metrics
	layerMetrics map[string]*LayerMetrics

	// Per-breaker state
	circuits map[string]metrics.CircuitState

	// Chain-level metrics
	chainHits        int64
	chainMisses      int64
	chainHitsByLayer map[int]int64

	// Backend requests by endpoint
	requests map[string]*RequestMetrics

	// Transfer pipeline
	transfers TransferMetrics
}

// LayerMetrics holds metrics for a single cache layer.
type LayerMetrics struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`

	// Async writer
	QueueDepth    int   `json:"queueDepth"`
	DroppedWrites int64 `json:"droppedWrites"`
	AsyncWrites   int64 `json:"asyncWrites"`
	AsyncErrors   int64 `json:"asyncErrors"`

	GetLatency time.Duration `json:"getLatencyTotal"`
	SetLatency time.Duration `json:"setLatencyTotal"`
}

// RequestMetrics holds backend call counts for one endpoint.
type RequestMetrics struct {
	Total   int64            `json:"total"`
	ByClass map[string]int64 `json:"byClass"`
	Latency time.Duration    `json:"latencyTotal"`
}

// TransferMetrics holds transfer pipeline counts.
type TransferMetrics struct {
	Attempts int64            `json:"attempts"`
	Retries  int64            `json:"retries"`
	Outcomes map[string]int64 `json:"outcomes"`
	Reasons  map[string]int64 `json:"reasons"`
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.reset()
	return mc
}

func (mc *MemoryCollector) reset() {
	mc.layerMetrics = make(map[string]*LayerMetrics)
	mc.circuits = make(map[string]metrics.CircuitState)
	mc.chainHits = 0
	mc.chainMisses = 0
	mc.chainHitsByLayer = make(map[int]int64)
	mc.requests = make(map[string]*RequestMetrics)
	mc.transfers = TransferMetrics{
		Outcomes: make(map[string]int64),
		Reasons:  make(map[string]int64),
	}
}

// layer must be called with mc.mu held.
func (mc *MemoryCollector) layer(name string) *LayerMetrics {
	lm, ok := mc.layerMetrics[name]
	if !ok {
		lm = &LayerMetrics{}
		mc.layerMetrics[name] = lm
	}
	return lm
}

// RecordGet records a cache get operation.
func (mc *MemoryCollector) RecordGet(layer string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	if hit {
		lm.Hits++
	} else {
		lm.Misses++
	}
	lm.GetLatency += duration
}

// RecordSet records a cache set operation.
func (mc *MemoryCollector) RecordSet(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Sets++
	if !success {
		lm.Errors++
	}
	lm.SetLatency += duration
}

// RecordDelete records a cache delete operation.
func (mc *MemoryCollector) RecordDelete(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Deletes++
	if !success {
		lm.Errors++
	}
}

// RecordCircuitState records the current circuit breaker state.
func (mc *MemoryCollector) RecordCircuitState(name string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.circuits[name] = state
}

// RecordQueueDepth records the current async writer queue depth.
func (mc *MemoryCollector) RecordQueueDepth(layer string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).QueueDepth = depth
}

// RecordWriteDropped records a dropped async write.
func (mc *MemoryCollector) RecordWriteDropped(layer string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.layer(layer).DroppedWrites++
}

// RecordAsyncWrite records an async write operation.
func (mc *MemoryCollector) RecordAsyncWrite(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.AsyncWrites++
	if !success {
		lm.AsyncErrors++
	}
}

// RecordChainGet records a chain-level get operation.
func (mc *MemoryCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if hit {
		mc.chainHits++
		mc.chainHitsByLayer[layerIndex]++
	} else {
		mc.chainMisses++
	}
}

// RecordRequest records a backend call.
func (mc *MemoryCollector) RecordRequest(endpoint string, class string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	rm, ok := mc.requests[endpoint]
	if !ok {
		rm = &RequestMetrics{ByClass: make(map[string]int64)}
		mc.requests[endpoint] = rm
	}
	rm.Total++
	rm.ByClass[class]++
	rm.Latency += duration
}

// RecordTransferAttempt records one network attempt of a transfer submit.
func (mc *MemoryCollector) RecordTransferAttempt(retry bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.transfers.Attempts++
	if retry {
		mc.transfers.Retries++
	}
}

// RecordTransferOutcome records the final state of a transfer attempt.
func (mc *MemoryCollector) RecordTransferOutcome(status string, reason string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.transfers.Outcomes[status]++
	if reason != "" {
		mc.transfers.Reasons[reason]++
	}
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	LayerMetrics     map[string]LayerMetrics   `json:"layers"`
	Circuits         map[string]string         `json:"circuits"`
	ChainHits        int64                     `json:"chainHits"`
	ChainMisses      int64                     `json:"chainMisses"`
	ChainHitsByLayer map[int]int64             `json:"chainHitsByLayer"`
	Requests         map[string]RequestMetrics `json:"requests"`
	Transfers        TransferMetrics           `json:"transfers"`
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := Snapshot{
		LayerMetrics:     make(map[string]LayerMetrics, len(mc.layerMetrics)),
		Circuits:         make(map[string]string, len(mc.circuits)),
		ChainHits:        mc.chainHits,
		ChainMisses:      mc.chainMisses,
		ChainHitsByLayer: make(map[int]int64, len(mc.chainHitsByLayer)),
		Requests:         make(map[string]RequestMetrics, len(mc.requests)),
		Transfers: TransferMetrics{
			Attempts: mc.transfers.Attempts,
			Retries:  mc.transfers.Retries,
			Outcomes: copyCounts(mc.transfers.Outcomes),
			Reasons:  copyCounts(mc.transfers.Reasons),
		},
	}

	for name, lm := range mc.layerMetrics {
		snapshot.LayerMetrics[name] = *lm
	}
	for name, state := range mc.circuits {
		snapshot.Circuits[name] = state.String()
	}
	for idx, hits := range mc.chainHitsByLayer {
		snapshot.ChainHitsByLayer[idx] = hits
	}
	for endpoint, rm := range mc.requests {
		snapshot.Requests[endpoint] = RequestMetrics{
			Total:   rm.Total,
			ByClass: copyCounts(rm.ByClass),
			Latency: rm.Latency,
		}
	}

	return snapshot
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.reset()
}

// GetLayerMetrics returns a copy of the metrics for a specific layer, or nil.
func (mc *MemoryCollector) GetLayerMetrics(layer string) *LayerMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if lm, exists := mc.layerMetrics[layer]; exists {
		copy := *lm
		return &copy
	}
	return nil
}

// CircuitState returns the last recorded state of the named breaker.
func (mc *MemoryCollector) CircuitState(name string) metrics.CircuitState {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.circuits[name]
}
