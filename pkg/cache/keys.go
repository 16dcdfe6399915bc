package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength bounds cache keys; Redis accepts more but long keys are a smell.
const MaxKeyLength = 250

// ValidateKey checks that a key is non-empty, at most MaxKeyLength bytes,
// and free of control characters and whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: key contains whitespace", ErrInvalidKey)
		}
	}

	return nil
}

// KeyPattern builds keys under a common prefix.
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a new key pattern with the given prefix and separator.
// The separator defaults to ":".
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{
		prefix:    prefix,
		separator: separator,
	}
}

// Build joins the prefix and parts: pattern.Build("accounts", "c1") -> "banca:accounts:c1".
func (kp *KeyPattern) Build(parts ...string) string {
	if len(parts) == 0 {
		return kp.prefix
	}
	if kp.prefix == "" {
		return strings.Join(parts, kp.separator)
	}
	return kp.prefix + kp.separator + strings.Join(parts, kp.separator)
}

// Scope returns a child pattern whose prefix is Build(parts...).
func (kp *KeyPattern) Scope(parts ...string) *KeyPattern {
	return &KeyPattern{
		prefix:    kp.Build(parts...),
		separator: kp.separator,
	}
}

// Prefix returns the pattern's prefix.
func (kp *KeyPattern) Prefix() string {
	return kp.prefix
}
