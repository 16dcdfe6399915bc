package cache

import "time"

// LayerConfig holds the TTL policy of a cache layer.
type LayerConfig struct {
	// Name is the identifier for this layer (e.g., "L1", "redis")
	Name string

	// DefaultTTL applies when Set is called with a zero TTL
	DefaultTTL time.Duration

	// MaxTTL caps the TTL of any entry; zero means uncapped
	MaxTTL time.Duration
}

// Validate checks if the configuration is valid.
func (c LayerConfig) Validate() error {
	if c.Name == "" {
		return ErrInvalidValue
	}

	if c.DefaultTTL < 0 || c.MaxTTL < 0 {
		return ErrInvalidValue
	}

	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		return ErrInvalidValue
	}

	return nil
}

// EffectiveTTL returns DefaultTTL for a non-positive ttl, and caps
// anything above MaxTTL.
func (c LayerConfig) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.DefaultTTL
	}

	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		return c.MaxTTL
	}

	return ttl
}
