package memory

import (
	"testing"
	"time"

	"banca-client/pkg/metrics"
)

func TestMemoryCollector_CacheLayers(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordGet("L1", true, time.Millisecond)
	mc.RecordGet("L1", false, time.Millisecond)
	mc.RecordSet("L1", false, time.Millisecond)
	mc.RecordDelete("L1", true, time.Millisecond)
	mc.RecordWriteDropped("L1")

	lm := mc.GetLayerMetrics("L1")
	if lm == nil {
		t.Fatal("Expected metrics for L1")
	}
	if lm.Hits != 1 || lm.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", lm.Hits, lm.Misses)
	}
	if lm.Errors != 1 {
		t.Errorf("Expected 1 error, got %d", lm.Errors)
	}
	if lm.DroppedWrites != 1 {
		t.Errorf("Expected 1 dropped write, got %d", lm.DroppedWrites)
	}
	if mc.GetLayerMetrics("L2") != nil {
		t.Error("Expected nil for unknown layer")
	}
}

func TestMemoryCollector_BackendAndTransfers(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordRequest("create_transfer", metrics.ClassTransient, time.Second)
	mc.RecordRequest("create_transfer", metrics.ClassOK, time.Second)
	mc.RecordTransferAttempt(false)
	mc.RecordTransferAttempt(true)
	mc.RecordTransferOutcome("completed", "", 2*time.Second)
	mc.RecordCircuitState("backend", metrics.CircuitOpen)

	snap := mc.Snapshot()

	req := snap.Requests["create_transfer"]
	if req.Total != 2 || req.ByClass[metrics.ClassTransient] != 1 {
		t.Errorf("Expected 2 requests with 1 transient, got %+v", req)
	}
	if snap.Transfers.Attempts != 2 || snap.Transfers.Retries != 1 {
		t.Errorf("Expected 2 attempts and 1 retry, got %+v", snap.Transfers)
	}
	if snap.Transfers.Outcomes["completed"] != 1 {
		t.Errorf("Expected 1 completed outcome, got %d", snap.Transfers.Outcomes["completed"])
	}
	if snap.Circuits["backend"] != "open" {
		t.Errorf("Expected circuit open, got %s", snap.Circuits["backend"])
	}

	mc.Reset()
	if got := mc.Snapshot().Transfers.Attempts; got != 0 {
		t.Errorf("Expected reset attempts, got %d", got)
	}
}

func TestMemoryCollector_SnapshotIsCopy(t *testing.T) {
	mc := NewMemoryCollector()
	mc.RecordTransferOutcome("failed", "rejected", 0)

	snap := mc.Snapshot()
	snap.Transfers.Reasons["rejected"] = 99

	if got := mc.Snapshot().Transfers.Reasons["rejected"]; got != 1 {
		t.Errorf("Expected snapshot to be detached, got %d", got)
	}
}
