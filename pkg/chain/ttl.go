package chain

import (
	"math"
	"time"
)

// TTLStrategy determines the TTL each layer gets for an entry whose base
// TTL is baseTTL. Layer 0 is the fastest layer.
type TTLStrategy interface {
	GetTTL(layerIndex, numLayers int, baseTTL time.Duration) time.Duration
}

// UniformTTLStrategy uses the same TTL for all layers.
type UniformTTLStrategy struct{}

// GetTTL returns baseTTL.
func (UniformTTLStrategy) GetTTL(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	return baseTTL
}

// DecayingTTLStrategy shortens TTLs toward the fast layers, so a per-process
// L1 goes stale sooner than the shared layer below it. The slowest layer
// keeps baseTTL; each layer above it is DecayFactor times the one below.
type DecayingTTLStrategy struct {
	DecayFactor float64
}

// GetTTL returns baseTTL * DecayFactor^(numLayers-1-layerIndex). Factors
// outside (0,1) disable decay.
func (s DecayingTTLStrategy) GetTTL(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	if s.DecayFactor <= 0 || s.DecayFactor >= 1 || numLayers <= 1 {
		return baseTTL
	}
	if layerIndex < 0 || layerIndex >= numLayers {
		return baseTTL
	}

	exponent := float64(numLayers - 1 - layerIndex)
	return time.Duration(float64(baseTTL) * math.Pow(s.DecayFactor, exponent))
}

// CustomTTLStrategy pins explicit TTLs per layer; layers without an entry
// use baseTTL.
type CustomTTLStrategy struct {
	TTLs []time.Duration
}

// GetTTL returns the pinned TTL for the layer, or baseTTL.
func (s CustomTTLStrategy) GetTTL(layerIndex, numLayers int, baseTTL time.Duration) time.Duration {
	if layerIndex >= 0 && layerIndex < len(s.TTLs) && s.TTLs[layerIndex] > 0 {
		return s.TTLs[layerIndex]
	}
	return baseTTL
}
