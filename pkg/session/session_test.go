package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestNewTokenSession(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	raw := signToken(t, jwt.MapClaims{
		"sub":   "customer-1",
		"email": "ana@example.com",
		"exp":   exp.Unix(),
	})

	s, err := NewTokenSession("Bearer " + raw)
	require.NoError(t, err)
	assert.Equal(t, "customer-1", s.Subject())
	assert.Equal(t, "ana@example.com", s.Email())
	assert.Equal(t, exp.Unix(), s.ExpiresAt().Unix())

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, token)
}

func TestNewTokenSession_Errors(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "", want: ErrNoCredential},
		{name: "bearer only", token: "Bearer ", want: ErrNoCredential},
		{name: "garbage", token: "not-a-jwt", want: ErrMalformed},
		{name: "no subject", token: signToken(t, jwt.MapClaims{"email": "x@example.com"}), want: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenSession(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTokenSession_Expiry(t *testing.T) {
	exp := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	raw := signToken(t, jwt.MapClaims{"sub": "customer-1", "exp": exp.Unix()})

	now := exp.Add(10 * time.Second)
	s, err := NewTokenSession(raw, WithClock(func() time.Time { return now }), WithLeeway(30*time.Second))
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	assert.NoError(t, err, "within leeway")

	now = exp.Add(time.Minute)
	_, err = s.Token(context.Background())
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenSession_CognitoUsernameFallback(t *testing.T) {
	raw := signToken(t, jwt.MapClaims{"cognito:username": "ana"})
	s, err := NewTokenSession(raw)
	require.NoError(t, err)
	assert.Equal(t, "ana", s.Subject())
	assert.False(t, s.Expired())
}

func TestStatic(t *testing.T) {
	_, err := Static{Customer: "c"}.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)

	token, err := Static{AccessToken: "abc", Customer: "c"}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestSwappable(t *testing.T) {
	s := NewSwappable(Static{AccessToken: "old", Customer: "c"})
	assert.Equal(t, "c", s.Subject())

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", token)

	require.NoError(t, s.Swap(Static{AccessToken: "new", Customer: "c"}))
	token, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", token)

	err = s.Swap(Static{AccessToken: "other", Customer: "someone-else"})
	assert.ErrorIs(t, err, ErrMalformed)
	token, _ = s.Token(context.Background())
	assert.Equal(t, "new", token)
}
