package chain

import (
	"context"
	"testing"
	"time"

	"banca-client/pkg/cache/mock"
)

func TestUniformTTLStrategy(t *testing.T) {
	strategy := UniformTTLStrategy{}

	for i := 0; i < 3; i++ {
		if ttl := strategy.GetTTL(i, 3, time.Minute); ttl != time.Minute {
			t.Errorf("Layer %d: expected 1m, got %v", i, ttl)
		}
	}
}

func TestDecayingTTLStrategy(t *testing.T) {
	strategy := DecayingTTLStrategy{DecayFactor: 0.5}

	tests := []struct {
		layer    int
		layers   int
		expected time.Duration
	}{
		{layer: 2, layers: 3, expected: 4 * time.Minute},
		{layer: 1, layers: 3, expected: 2 * time.Minute},
		{layer: 0, layers: 3, expected: time.Minute},
		{layer: 0, layers: 2, expected: 2 * time.Minute},
		{layer: 0, layers: 1, expected: 4 * time.Minute},
	}

	for _, tt := range tests {
		got := strategy.GetTTL(tt.layer, tt.layers, 4*time.Minute)
		if got != tt.expected {
			t.Errorf("GetTTL(%d, %d): expected %v, got %v", tt.layer, tt.layers, tt.expected, got)
		}
	}
}

func TestDecayingTTLStrategy_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		factor float64
		layer  int
	}{
		{name: "zero factor", factor: 0, layer: 0},
		{name: "negative factor", factor: -0.5, layer: 0},
		{name: "factor of one", factor: 1, layer: 0},
		{name: "factor above one", factor: 2, layer: 0},
		{name: "negative layer", factor: 0.5, layer: -1},
		{name: "layer out of range", factor: 0.5, layer: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := DecayingTTLStrategy{DecayFactor: tt.factor}
			if ttl := strategy.GetTTL(tt.layer, 3, time.Minute); ttl != time.Minute {
				t.Errorf("Expected base TTL, got %v", ttl)
			}
		})
	}
}

func TestCustomTTLStrategy(t *testing.T) {
	strategy := CustomTTLStrategy{TTLs: []time.Duration{10 * time.Second, 0}}

	if ttl := strategy.GetTTL(0, 3, time.Minute); ttl != 10*time.Second {
		t.Errorf("Expected pinned 10s, got %v", ttl)
	}
	if ttl := strategy.GetTTL(1, 3, time.Minute); ttl != time.Minute {
		t.Errorf("Expected base TTL for zero entry, got %v", ttl)
	}
	if ttl := strategy.GetTTL(2, 3, time.Minute); ttl != time.Minute {
		t.Errorf("Expected base TTL for missing entry, got %v", ttl)
	}

	var empty CustomTTLStrategy
	if ttl := empty.GetTTL(0, 1, time.Minute); ttl != time.Minute {
		t.Errorf("Expected base TTL with no entries, got %v", ttl)
	}
}

func TestChain_SetUsesTTLStrategy(t *testing.T) {
	var l1TTL, l2TTL time.Duration
	l1 := mock.NewMockLayer("L1")
	l1.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		l1TTL = ttl
		return nil
	}
	l2 := mock.NewMockLayer("L2")
	l2.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		l2TTL = ttl
		return nil
	}

	c, err := NewWithConfig(Config{TTLStrategy: DecayingTTLStrategy{DecayFactor: 0.5}}, l1, l2)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer c.Close()

	c.Set(context.Background(), "key", []byte("v"), 2*time.Minute)

	if l1TTL != time.Minute {
		t.Errorf("Expected L1 TTL 1m, got %v", l1TTL)
	}
	if l2TTL != 2*time.Minute {
		t.Errorf("Expected L2 TTL 2m, got %v", l2TTL)
	}
}

func TestChain_WarmupUsesTTLStrategy(t *testing.T) {
	warmed := make(chan time.Duration, 1)
	l1 := mock.NewMockLayer("L1")
	l1.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		warmed <- ttl
		return nil
	}
	l2 := mock.NewMockLayer("L2")
	l2.GetFunc = func(ctx context.Context, key string) ([]byte, error) {
		return []byte("v"), nil
	}

	c, err := NewWithConfig(Config{
		TTLStrategy: DecayingTTLStrategy{DecayFactor: 0.5},
		WarmupTTL:   40 * time.Second,
	}, l1, l2)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer c.Close()

	c.Get(context.Background(), "key")

	select {
	case ttl := <-warmed:
		if ttl != 20*time.Second {
			t.Errorf("Expected warm-up TTL 20s, got %v", ttl)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected L1 to be warmed")
	}
}
