// Package session carries the signed-in customer's credential into backend
// calls. A Session is built explicitly per user and injected; there is no
// process-wide token holder.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoCredential is returned when no bearer token is available.
	ErrNoCredential = errors.New("session: no credential")

	// ErrExpired is returned when the bearer token is past its expiry.
	ErrExpired = errors.New("session: credential expired")

	// ErrMalformed is returned when the bearer token cannot be decoded.
	ErrMalformed = errors.New("session: malformed credential")

	// ErrUnverified is returned by a Verifier for tokens whose signature,
	// issuer or audience does not check out.
	ErrUnverified = errors.New("session: credential not verified")
)

// DefaultLeeway absorbs clock skew between the client and the issuer.
const DefaultLeeway = 30 * time.Second

// Session supplies the credential for backend calls.
type Session interface {
	// Token returns a bearer token valid for at least the next request.
	Token(ctx context.Context) (string, error)

	// Subject identifies the customer; used to scope cached data.
	Subject() string
}

// TokenSession wraps an identity-provider ID token. NewTokenSession decodes
// claims without checking the signature, which suits a client whose every
// call is verified by the API gateway authorizer; anything that acts on the
// subject itself must build sessions through a Verifier.
type TokenSession struct {
	raw     string
	subject string
	email   string
	expiry  time.Time
	leeway  time.Duration
	now     func() time.Time
}

// Option configures a TokenSession.
type Option func(*TokenSession)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) Option {
	return func(s *TokenSession) { s.leeway = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *TokenSession) { s.now = now }
}

type idTokenClaims struct {
	Email           string `json:"email"`
	CognitoUsername string `json:"cognito:username"`
	jwt.RegisteredClaims
}

// NewTokenSession decodes token. A leading "Bearer " prefix is accepted.
// An empty token yields ErrNoCredential.
func NewTokenSession(token string, opts ...Option) (*TokenSession, error) {
	token = bearer(token)
	if token == "" {
		return nil, ErrNoCredential
	}

	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromClaims(token, claims, opts)
}

func bearer(token string) string {
	token = strings.TrimSpace(token)
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	if strings.EqualFold(token, "bearer") {
		return ""
	}
	return token
}

func fromClaims(token string, claims *idTokenClaims, opts []Option) (*TokenSession, error) {
	s := &TokenSession{
		raw:     token,
		subject: claims.Subject,
		email:   claims.Email,
		leeway:  DefaultLeeway,
		now:     time.Now,
	}
	if s.subject == "" {
		s.subject = claims.CognitoUsername
	}
	if claims.ExpiresAt != nil {
		s.expiry = claims.ExpiresAt.Time
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return s, nil
}

// Token returns the raw token, or ErrExpired once the expiry (plus leeway)
// has passed.
func (s *TokenSession) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Expired() {
		return "", ErrExpired
	}
	return s.raw, nil
}

// Subject returns the token's sub claim.
func (s *TokenSession) Subject() string { return s.subject }

// Email returns the email claim, if present.
func (s *TokenSession) Email() string { return s.email }

// ExpiresAt returns the token expiry; zero when the token has none.
func (s *TokenSession) ExpiresAt() time.Time { return s.expiry }

// Expired reports whether the token is past its expiry plus leeway.
func (s *TokenSession) Expired() bool {
	if s.expiry.IsZero() {
		return false
	}
	return s.now().After(s.expiry.Add(s.leeway))
}

// Static is a fixed-token session, used by tooling and tests.
type Static struct {
	AccessToken string
	Customer    string
}

// Token returns the fixed token, or ErrNoCredential when it is empty.
func (s Static) Token(ctx context.Context) (string, error) {
	if s.AccessToken == "" {
		return "", ErrNoCredential
	}
	return s.AccessToken, nil
}

// Subject returns the fixed customer id.
func (s Static) Subject() string { return s.Customer }

// Swappable is a Session whose credential can be replaced, so long-lived
// components keep using the customer's latest token. The subject is fixed
// at construction.
type Swappable struct {
	subject string
	current atomic.Pointer[Session]
}

// NewSwappable wraps s.
func NewSwappable(s Session) *Swappable {
	sw := &Swappable{subject: s.Subject()}
	sw.current.Store(&s)
	return sw
}

// Swap replaces the credential. Sessions for another subject are refused.
func (s *Swappable) Swap(next Session) error {
	if next.Subject() != s.subject {
		return fmt.Errorf("%w: subject mismatch", ErrMalformed)
	}
	s.current.Store(&next)
	return nil
}

// Token returns the current session's token.
func (s *Swappable) Token(ctx context.Context) (string, error) {
	return (*s.current.Load()).Token(ctx)
}

// Subject returns the fixed subject.
func (s *Swappable) Subject() string { return s.subject }
