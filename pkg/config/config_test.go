package config

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestForEnvironment_Limits(t *testing.T) {
	tests := []struct {
		env        string
		wantEnv    string
		wantMax    string
		wantDaily  string
		wantBase   string
		wantMFAOff bool
	}{
		{env: "dev", wantEnv: EnvDev, wantMax: "100", wantDaily: "100", wantBase: "http://localhost:3000/api", wantMFAOff: true},
		{env: "beta", wantEnv: EnvBeta, wantMax: "250", wantDaily: "250", wantBase: "https://api-beta.bancainternet.com"},
		{env: "prod", wantEnv: EnvProd, wantMax: "500", wantDaily: "500", wantBase: "https://api.bancainternet.com"},
		{env: "staging", wantEnv: EnvDev, wantMax: "100", wantDaily: "100", wantBase: "http://localhost:3000/api", wantMFAOff: true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			c := ForEnvironment(tt.env)

			if c.Environment != tt.wantEnv {
				t.Errorf("Expected environment %s, got %s", tt.wantEnv, c.Environment)
			}
			if !c.Transfers.MaxAmount.Equal(decimal.RequireFromString(tt.wantMax)) {
				t.Errorf("Expected max amount %s, got %s", tt.wantMax, c.Transfers.MaxAmount)
			}
			if !c.Transfers.DailyLimit.Equal(decimal.RequireFromString(tt.wantDaily)) {
				t.Errorf("Expected daily limit %s, got %s", tt.wantDaily, c.Transfers.DailyLimit)
			}
			if !c.Transfers.MinAmount.Equal(decimal.RequireFromString("0.01")) {
				t.Errorf("Expected min amount 0.01, got %s", c.Transfers.MinAmount)
			}
			if c.APIBaseURL != tt.wantBase {
				t.Errorf("Expected base url %s, got %s", tt.wantBase, c.APIBaseURL)
			}
			if c.Features.MFAEnabled == tt.wantMFAOff {
				t.Errorf("Unexpected MFA flag %v", c.Features.MFAEnabled)
			}
			if err := c.Validate(); err != nil {
				t.Errorf("Built-in profile should validate: %v", err)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("prod")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Client.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", c.Client.Timeout)
	}
	if c.Client.RetryAttempts != 3 {
		t.Errorf("Expected 3 retry attempts, got %d", c.Client.RetryAttempts)
	}
	if c.Cache.AccountsTTL != 5*time.Minute {
		t.Errorf("Expected 5m accounts ttl, got %v", c.Cache.AccountsTTL)
	}
	if c.Transfers.MaxNoteLength != 100 {
		t.Errorf("Expected note length 100, got %d", c.Transfers.MaxNoteLength)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BANCA_ENV", "beta")
	t.Setenv("BANCA_API_BASE_URL", "https://gateway.example.com/")
	t.Setenv("BANCA_TRANSFERS_MAX_AMOUNT", "200.50")
	t.Setenv("BANCA_CLIENT_RETRY_ATTEMPTS", "5")
	t.Setenv("BANCA_CACHE_ACCOUNTS_TTL", "90s")
	t.Setenv("BANCA_REDIS_ADDR", "redis:6379")
	t.Setenv("BANCA_COGNITO_USER_POOL_ID", "us-east-1_abc")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Environment != EnvBeta {
		t.Errorf("Expected beta, got %s", c.Environment)
	}
	if c.APIBaseURL != "https://gateway.example.com" {
		t.Errorf("Expected trimmed base url, got %s", c.APIBaseURL)
	}
	if !c.Transfers.MaxAmount.Equal(decimal.RequireFromString("200.50")) {
		t.Errorf("Expected max amount 200.50, got %s", c.Transfers.MaxAmount)
	}
	if !c.Transfers.DailyLimit.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected beta daily limit to survive, got %s", c.Transfers.DailyLimit)
	}
	if c.Client.RetryAttempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", c.Client.RetryAttempts)
	}
	if c.Cache.AccountsTTL != 90*time.Second {
		t.Errorf("Expected 90s, got %v", c.Cache.AccountsTTL)
	}
	if c.Cache.RedisAddr != "redis:6379" {
		t.Errorf("Expected redis addr, got %q", c.Cache.RedisAddr)
	}
	if c.Cognito.UserPoolID != "us-east-1_abc" {
		t.Errorf("Expected user pool id, got %q", c.Cognito.UserPoolID)
	}

	wantIssuer := "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_abc"
	if c.Auth.Issuer != wantIssuer {
		t.Errorf("Expected issuer %s, got %s", wantIssuer, c.Auth.Issuer)
	}
	if c.Auth.JWKSURL != wantIssuer+"/.well-known/jwks.json" {
		t.Errorf("Expected pool key set url, got %s", c.Auth.JWKSURL)
	}

	// Five attempts stretch the transfer budget; the write timeout follows.
	if c.Server.WriteTimeout <= c.Client.TransferBudget() {
		t.Errorf("Expected write timeout above %v, got %v", c.Client.TransferBudget(), c.Server.WriteTimeout)
	}
}

func TestClientConfig_TransferBudget(t *testing.T) {
	c := ForEnvironment(EnvProd)

	// One account load and three attempts of 30s, plus 500ms and 1s of backoff.
	want := 121*time.Second + 500*time.Millisecond
	if got := c.Client.TransferBudget(); got != want {
		t.Errorf("Expected budget %v, got %v", want, got)
	}
	if c.Server.WriteTimeout <= want {
		t.Errorf("Expected default write timeout above the budget, got %v", c.Server.WriteTimeout)
	}
}

func TestLoad_WriteTimeoutBelowTransferBudget(t *testing.T) {
	t.Setenv("BANCA_SERVER_WRITE_TIMEOUT", "45s")

	_, err := Load("prod")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoad_InvalidDecimal(t *testing.T) {
	t.Setenv("BANCA_TRANSFERS_MIN_AMOUNT", "one cent")

	_, err := Load("dev")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty base url", func(c *Config) { c.APIBaseURL = "" }},
		{"zero min", func(c *Config) { c.Transfers.MinAmount = decimal.Zero }},
		{"max below min", func(c *Config) { c.Transfers.MaxAmount = decimal.RequireFromString("0.001") }},
		{"no note", func(c *Config) { c.Transfers.MaxNoteLength = 0 }},
		{"no timeout", func(c *Config) { c.Client.Timeout = 0 }},
		{"no attempts", func(c *Config) { c.Client.RetryAttempts = 0 }},
		{"no ttl", func(c *Config) { c.Cache.AccountsTTL = 0 }},
		{"write timeout within budget", func(c *Config) { c.Server.WriteTimeout = c.Client.TransferBudget() }},
		{"hmac in prod", func(c *Config) { c.Auth.HMACSecret = "local-secret" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ForEnvironment(EnvProd)
			tt.mutate(&c)

			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
