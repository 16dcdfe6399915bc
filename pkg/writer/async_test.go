package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"banca-client/pkg/cache/mock"
	memorycollector "banca-client/pkg/metrics/memory"
)

func TestNewAsyncWriter_Defaults(t *testing.T) {
	writer := NewAsyncWriter(mock.NewMockLayer("L1"), AsyncWriterConfig{})
	defer writer.Close()

	if cap(writer.queue) != 1000 {
		t.Errorf("Expected default queue size 1000, got %d", cap(writer.queue))
	}
	if writer.workers != 2 {
		t.Errorf("Expected default workers 2, got %d", writer.workers)
	}
	if writer.config.WriteTimeout != time.Second {
		t.Errorf("Expected default write timeout 1s, got %v", writer.config.WriteTimeout)
	}
}

func TestAsyncWriter_WriteAndFlush(t *testing.T) {
	layer := mock.NewMapLayer("L1")
	writer := NewAsyncWriter(layer, AsyncWriterConfig{QueueSize: 100, Workers: 4})
	defer writer.Close()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := writer.Write(ctx, fmt.Sprintf("key-%d", i), []byte("v"), time.Minute); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if err := writer.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if layer.SetCalls() != 50 {
		t.Errorf("Expected 50 sets, got %d", layer.SetCalls())
	}
	if _, err := layer.Get(ctx, "key-49"); err != nil {
		t.Errorf("Expected key-49 to be written, got %v", err)
	}

	stats := writer.Stats()
	if stats.TotalWrites != 50 || stats.Pending != 0 || stats.SuccessfulWrites() != 50 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestAsyncWriter_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	layer := mock.NewMockLayer("slow")
	layer.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		<-release
		return nil
	}

	collector := memorycollector.NewMemoryCollector()
	writer := NewAsyncWriterWithMetrics(layer, AsyncWriterConfig{
		QueueSize:    1,
		Workers:      1,
		MaxWaitTime:  time.Millisecond,
		WriteTimeout: time.Minute,
	}, collector)

	ctx := context.Background()
	var dropped int
	for i := 0; i < 10; i++ {
		if err := writer.Write(ctx, "k", []byte("v"), 0); errors.Is(err, ErrQueueFull) {
			dropped++
		}
	}

	close(release)
	writer.Close()

	if dropped == 0 {
		t.Error("Expected some writes to be dropped")
	}
	if got := writer.Stats().DroppedWrites; got != int64(dropped) {
		t.Errorf("Expected %d dropped writes in stats, got %d", dropped, got)
	}
	if lm := collector.GetLayerMetrics("slow"); lm == nil || lm.DroppedWrites != int64(dropped) {
		t.Errorf("Expected dropped writes in metrics, got %+v", lm)
	}
}

func TestAsyncWriter_FailedWritesCounted(t *testing.T) {
	layer := mock.NewFailingLayer("broken", errors.New("redis: down"))
	writer := NewAsyncWriter(layer, AsyncWriterConfig{})
	defer writer.Close()

	writer.Write(context.Background(), "k", []byte("v"), 0)
	if err := writer.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if got := writer.Stats().FailedWrites; got != 1 {
		t.Errorf("Expected 1 failed write, got %d", got)
	}
}

func TestAsyncWriter_Closed(t *testing.T) {
	writer := NewAsyncWriter(mock.NewMockLayer("L1"), AsyncWriterConfig{})
	writer.Close()
	writer.Close()

	if err := writer.Write(context.Background(), "k", []byte("v"), 0); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Expected ErrWriterClosed, got %v", err)
	}
}

func TestAsyncWriter_CancelledContext(t *testing.T) {
	writer := NewAsyncWriter(mock.NewMockLayer("L1"), AsyncWriterConfig{})
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := writer.Write(ctx, "k", []byte("v"), 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestAsyncWriter_CloseDrainsQueue(t *testing.T) {
	layer := mock.NewMapLayer("L1")
	writer := NewAsyncWriter(layer, AsyncWriterConfig{QueueSize: 100, Workers: 1})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			writer.Write(context.Background(), fmt.Sprintf("k%d", i), []byte("v"), 0)
		}(i)
	}
	wg.Wait()
	writer.Close()

	if layer.SetCalls() != 20 {
		t.Errorf("Expected all 20 queued writes to be applied, got %d", layer.SetCalls())
	}
}
