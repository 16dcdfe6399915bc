package writer

import "errors"

// AsyncWriterStats provides statistics about async writer operations.
type AsyncWriterStats struct {
	// QueueDepth is the number of writes waiting in the queue
	QueueDepth int `json:"queueDepth"`

	// Pending is queued plus in-flight writes
	Pending int64 `json:"pending"`

	// DroppedWrites is the total number of writes dropped due to backpressure
	DroppedWrites int64 `json:"droppedWrites"`

	// TotalWrites is the total number of writes accepted
	TotalWrites int64 `json:"totalWrites"`

	// FailedWrites is the total number of writes the layer rejected
	FailedWrites int64 `json:"failedWrites"`
}

// SuccessfulWrites is accepted writes that were neither failed nor still pending.
func (s AsyncWriterStats) SuccessfulWrites() int64 {
	n := s.TotalWrites - s.FailedWrites - s.Pending
	if n < 0 {
		return 0
	}
	return n
}

// Errors returned by async writer operations.
var (
	// ErrQueueFull is returned when the write queue is full and MaxWaitTime exceeded
	ErrQueueFull = errors.New("writer: queue full, write dropped")

	// ErrWriterClosed is returned when attempting to write to a closed writer
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush() times out waiting for queue to drain
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
