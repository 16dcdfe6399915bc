package session

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Verifier checks a bearer token's signature, expiry, issuer and audience
// before a TokenSession is built from it.
type Verifier struct {
	key      func(ctx context.Context, token *jwt.Token) (interface{}, error)
	methods  []string
	issuer   string
	audience string
	leeway   time.Duration
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.issuer = issuer }
}

// WithAudience requires the aud claim to contain audience.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) { v.audience = audience }
}

// WithVerifierLeeway overrides DefaultLeeway for expiry checks.
func WithVerifierLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// NewHMACVerifier verifies HS256/384/512 tokens signed with secret.
func NewHMACVerifier(secret []byte, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		key: func(ctx context.Context, token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		methods: []string{"HS256", "HS384", "HS512"},
		leeway:  DefaultLeeway,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewJWKSVerifier verifies RS256 tokens against the key set served at
// jwksURL, such as a Cognito user pool's.
func NewJWKSVerifier(jwksURL string, hc *http.Client, opts ...VerifierOption) *Verifier {
	keys := newKeySet(jwksURL, hc)
	v := &Verifier{
		key:     keys.keyFor,
		methods: []string{"RS256"},
		leeway:  DefaultLeeway,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks token (a leading "Bearer " is accepted) and returns its
// session. Errors wrap ErrNoCredential, ErrExpired, ErrMalformed or
// ErrUnverified.
func (v *Verifier) Verify(ctx context.Context, token string, opts ...Option) (*TokenSession, error) {
	token = bearer(token)
	if token == "" {
		return nil, ErrNoCredential
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := &idTokenClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key(ctx, t)
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnverified, err)
	}

	return fromClaims(token, claims, opts)
}

const (
	keySetTTL = 10 * time.Minute

	// keySetMinRefresh stops tokens with unknown key ids from hammering
	// the key endpoint.
	keySetMinRefresh = 30 * time.Second
)

// keySet caches the RSA keys of a JWKS endpoint by key id.
type keySet struct {
	url    string
	client *http.Client
	sf     singleflight.Group

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func newKeySet(url string, hc *http.Client) *keySet {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &keySet{url: strings.TrimSpace(url), client: hc}
}

func (k *keySet) keyFor(ctx context.Context, token *jwt.Token) (interface{}, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}

	key, fresh := k.cached(kid)
	if key != nil && fresh {
		return key, nil
	}

	k.mu.RLock()
	recent := time.Since(k.fetched) < keySetMinRefresh
	k.mu.RUnlock()
	if !recent {
		if _, err, _ := k.sf.Do("refresh", func() (interface{}, error) {
			return nil, k.refresh(ctx)
		}); err != nil && key == nil {
			return nil, err
		}
	}

	if key, _ = k.cached(kid); key == nil {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

func (k *keySet) cached(kid string) (*rsa.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys[kid], time.Since(k.fetched) < keySetTTL
}

func (k *keySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("key set endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(payload.Keys))
	for _, jwk := range payload.Keys {
		if jwk.Kid == "" || jwk.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKey(jwk.N, jwk.E)
		if err != nil {
			continue
		}
		keys[jwk.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("key set has no usable RSA keys")
	}

	k.mu.Lock()
	k.keys = keys
	k.fetched = time.Now()
	k.mu.Unlock()
	return nil
}

func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = exp<<8 | uint64(b)
	}
	if exp == 0 || len(nb) == 0 {
		return nil, errors.New("invalid key")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}
