package cache

import (
	"context"
	"time"
)

// CacheLayer is one tier of the read-through cache. Values are opaque
// encoded payloads; callers own the encoding.
type CacheLayer interface {
	// Get returns the stored payload, or ErrKeyNotFound when the key is
	// absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A ttl of zero uses the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics (e.g. "L1", "redis").
	Name() string

	// Close releases any resources held by the layer.
	Close() error
}

// Entry is a stored payload with its freshness window.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewEntry builds an entry created at now that expires after ttl.
func NewEntry(value []byte, now time.Time, ttl time.Duration) Entry {
	return Entry{
		Value:     value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// ExpiredAt reports whether the entry is stale at now.
func (e Entry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TimeToLive returns the remaining freshness at now, or 0 once expired.
func (e Entry) TimeToLive(now time.Time) time.Duration {
	if e.ExpiredAt(now) {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

// Age is how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
