// Package config selects the deployment profile (dev, beta, prod) and lets
// BANCA_* environment variables override individual values through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Deployment environments.
const (
	EnvDev  = "dev"
	EnvBeta = "beta"
	EnvProd = "prod"
)

// Config is the full client configuration for one deployment environment.
type Config struct {
	Environment string
	APIBaseURL  string
	Region      string

	Cognito   CognitoConfig
	Auth      AuthConfig
	App       AppConfig
	Features  FeatureFlags
	Transfers TransferLimits
	UI        UIConfig
	Client    ClientConfig
	Cache     CacheConfig
	Server    ServerConfig
}

// CognitoConfig holds the identity provider connection parameters.
type CognitoConfig struct {
	UserPoolID       string
	UserPoolClientID string
	Domain           string
	IdentityPoolID   string
}

// AuthConfig tells the gateway how to verify bearer tokens. With a user
// pool configured, the issuer and key set default to the pool's.
type AuthConfig struct {
	// Issuer is the expected iss claim
	Issuer string
	// JWKSURL serves the identity provider's signing keys
	JWKSURL string
	// Audience is the expected aud claim (default: the user pool client id)
	Audience string
	// HMACSecret verifies HS256 tokens instead of a key set; local use only
	HMACSecret string
}

// CognitoIssuer is the token issuer of a Cognito user pool.
func CognitoIssuer(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// AppConfig describes the application itself.
type AppConfig struct {
	Name        string
	Version     string
	Description string
}

// FeatureFlags toggles optional front-end features.
type FeatureFlags struct {
	MFAEnabled           bool
	DarkModeEnabled      bool
	NotificationsEnabled bool
}

// TransferLimits bounds what the transfer form accepts.
type TransferLimits struct {
	DailyLimit    decimal.Decimal
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	MaxNoteLength int
}

// UIConfig holds presentation defaults.
type UIConfig struct {
	Theme    string
	Language string
	Locale   string
	Currency string
}

// ClientConfig tunes the backend client and the transfer pipeline.
type ClientConfig struct {
	// Timeout bounds every backend request
	Timeout time.Duration
	// RetryAttempts is the total number of attempts for a transient failure
	RetryAttempts int
	// RetryBackoff is the pause before the first retry, doubled afterwards
	RetryBackoff time.Duration
	// PendingRefetchDelay is how long to wait before refetching after a pending transfer
	PendingRefetchDelay time.Duration
}

// TransferBudget is the longest a transfer submit can take: the account
// load validation needs, every attempt, and the backoff between attempts.
func (c ClientConfig) TransferBudget() time.Duration {
	budget := time.Duration(c.RetryAttempts+1) * c.Timeout
	backoff := c.RetryBackoff
	for i := 1; i < c.RetryAttempts; i++ {
		budget += backoff
		backoff *= 2
	}
	return budget
}

// CacheConfig configures the account directory cache.
type CacheConfig struct {
	AccountsTTL     time.Duration
	TransactionsTTL time.Duration
	MaxEntries      int
	// RedisAddr enables a shared second cache layer when set
	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string
}

// ServerConfig configures the gateway HTTP server.
type ServerConfig struct {
	Address     string
	ReadTimeout time.Duration
	// WriteTimeout must exceed the client's TransferBudget; when unset it is
	// derived from it
	WriteTimeout time.Duration
}

// writeTimeoutMargin is added to the transfer budget for the response itself.
const writeTimeoutMargin = 15 * time.Second

var (
	// ErrInvalidConfig is returned by Validate for inconsistent settings
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

func base() Config {
	return Config{
		Environment: EnvDev,
		APIBaseURL:  "http://localhost:3000/api",
		Region:      "us-east-1",
		App: AppConfig{
			Name:        "Banca por Internet",
			Version:     "1.0.0",
			Description: "Aplicación de banca por internet",
		},
		Features: FeatureFlags{
			MFAEnabled:           true,
			DarkModeEnabled:      true,
			NotificationsEnabled: true,
		},
		Transfers: TransferLimits{
			DailyLimit:    decimal.NewFromInt(500),
			MinAmount:     decimal.RequireFromString("0.01"),
			MaxAmount:     decimal.NewFromInt(500),
			MaxNoteLength: 100,
		},
		UI: UIConfig{
			Theme:    "system",
			Language: "es",
			Locale:   "es-EC",
			Currency: "USD",
		},
		Client: ClientConfig{
			Timeout:             30 * time.Second,
			RetryAttempts:       3,
			RetryBackoff:        500 * time.Millisecond,
			PendingRefetchDelay: 3 * time.Second,
		},
		Cache: CacheConfig{
			AccountsTTL:     5 * time.Minute,
			TransactionsTTL: 2 * time.Minute,
			MaxEntries:      10000,
			RedisKeyPrefix:  "banca:",
		},
		Server: ServerConfig{
			Address:     ":8080",
			ReadTimeout: 15 * time.Second,
		},
	}
}

// ForEnvironment returns the built-in profile for env. Unknown names get the
// dev profile.
func ForEnvironment(env string) Config {
	c := base()

	switch env {
	case EnvBeta:
		c.Environment = EnvBeta
		c.APIBaseURL = "https://api-beta.bancainternet.com"
		c.Transfers.DailyLimit = decimal.NewFromInt(250)
		c.Transfers.MaxAmount = decimal.NewFromInt(250)
	case EnvProd:
		c.Environment = EnvProd
		c.APIBaseURL = "https://api.bancainternet.com"
	default:
		c.Environment = EnvDev
		c.Features.MFAEnabled = false
		c.Transfers.DailyLimit = decimal.NewFromInt(100)
		c.Transfers.MaxAmount = decimal.NewFromInt(100)
	}

	c.Server.WriteTimeout = c.Client.TransferBudget() + writeTimeoutMargin
	return c
}

// Load resolves the environment (argument, then BANCA_ENV, then dev) and
// applies BANCA_* overrides on top of its profile.
func Load(env string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BANCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if env == "" {
		env = v.GetString("env")
	}
	c := ForEnvironment(strings.ToLower(strings.TrimSpace(env)))
	setDefaults(v, c)

	c.APIBaseURL = strings.TrimRight(v.GetString("api.base_url"), "/")
	c.Region = v.GetString("region")

	c.Cognito = CognitoConfig{
		UserPoolID:       v.GetString("cognito.user_pool_id"),
		UserPoolClientID: v.GetString("cognito.user_pool_client_id"),
		Domain:           v.GetString("cognito.domain"),
		IdentityPoolID:   v.GetString("cognito.identity_pool_id"),
	}

	c.Auth = AuthConfig{
		Issuer:     v.GetString("auth.issuer"),
		JWKSURL:    v.GetString("auth.jwks_url"),
		Audience:   v.GetString("auth.audience"),
		HMACSecret: v.GetString("auth.hmac_secret"),
	}
	if c.Cognito.UserPoolID != "" {
		if c.Auth.Issuer == "" {
			c.Auth.Issuer = CognitoIssuer(c.Region, c.Cognito.UserPoolID)
		}
		if c.Auth.JWKSURL == "" {
			c.Auth.JWKSURL = c.Auth.Issuer + "/.well-known/jwks.json"
		}
		if c.Auth.Audience == "" {
			c.Auth.Audience = c.Cognito.UserPoolClientID
		}
	}

	c.Features.MFAEnabled = v.GetBool("features.mfa_enabled")

	var err error
	if c.Transfers.DailyLimit, err = decimalKey(v, "transfers.daily_limit"); err != nil {
		return Config{}, err
	}
	if c.Transfers.MinAmount, err = decimalKey(v, "transfers.min_amount"); err != nil {
		return Config{}, err
	}
	if c.Transfers.MaxAmount, err = decimalKey(v, "transfers.max_amount"); err != nil {
		return Config{}, err
	}
	c.Transfers.MaxNoteLength = v.GetInt("transfers.max_note_length")

	c.UI.Currency = v.GetString("ui.currency")

	c.Client.Timeout = v.GetDuration("client.timeout")
	c.Client.RetryAttempts = v.GetInt("client.retry_attempts")
	c.Client.RetryBackoff = v.GetDuration("client.retry_backoff")
	c.Client.PendingRefetchDelay = v.GetDuration("client.pending_refetch_delay")

	c.Cache.AccountsTTL = v.GetDuration("cache.accounts_ttl")
	c.Cache.TransactionsTTL = v.GetDuration("cache.transactions_ttl")
	c.Cache.MaxEntries = v.GetInt("cache.max_entries")
	c.Cache.RedisAddr = v.GetString("redis.addr")
	c.Cache.RedisPassword = v.GetString("redis.password")
	c.Cache.RedisKeyPrefix = v.GetString("redis.key_prefix")

	c.Server.Address = v.GetString("server.address")
	c.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	c.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = c.Client.TransferBudget() + writeTimeoutMargin
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("api.base_url", c.APIBaseURL)
	v.SetDefault("region", c.Region)
	v.SetDefault("cognito.user_pool_id", "")
	v.SetDefault("cognito.user_pool_client_id", "")
	v.SetDefault("cognito.domain", "")
	v.SetDefault("cognito.identity_pool_id", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("features.mfa_enabled", c.Features.MFAEnabled)
	v.SetDefault("transfers.daily_limit", c.Transfers.DailyLimit.String())
	v.SetDefault("transfers.min_amount", c.Transfers.MinAmount.String())
	v.SetDefault("transfers.max_amount", c.Transfers.MaxAmount.String())
	v.SetDefault("transfers.max_note_length", c.Transfers.MaxNoteLength)
	v.SetDefault("ui.currency", c.UI.Currency)
	v.SetDefault("client.timeout", c.Client.Timeout)
	v.SetDefault("client.retry_attempts", c.Client.RetryAttempts)
	v.SetDefault("client.retry_backoff", c.Client.RetryBackoff)
	v.SetDefault("client.pending_refetch_delay", c.Client.PendingRefetchDelay)
	v.SetDefault("cache.accounts_ttl", c.Cache.AccountsTTL)
	v.SetDefault("cache.transactions_ttl", c.Cache.TransactionsTTL)
	v.SetDefault("cache.max_entries", c.Cache.MaxEntries)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.key_prefix", c.Cache.RedisKeyPrefix)
	v.SetDefault("server.address", c.Server.Address)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", 0)
}

func decimalKey(v *viper.Viper, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q is not a decimal", ErrInvalidConfig, key, raw)
	}
	return d, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("%w: api base url is empty", ErrInvalidConfig)
	}

	t := c.Transfers
	if !t.MinAmount.IsPositive() {
		return fmt.Errorf("%w: min amount must be positive", ErrInvalidConfig)
	}
	if t.MaxAmount.LessThan(t.MinAmount) {
		return fmt.Errorf("%w: max amount %s is below min amount %s", ErrInvalidConfig, t.MaxAmount, t.MinAmount)
	}
	if t.DailyLimit.IsNegative() {
		return fmt.Errorf("%w: daily limit is negative", ErrInvalidConfig)
	}
	if t.MaxNoteLength <= 0 {
		return fmt.Errorf("%w: max note length must be positive", ErrInvalidConfig)
	}

	if c.Client.Timeout <= 0 {
		return fmt.Errorf("%w: client timeout must be positive", ErrInvalidConfig)
	}
	if c.Client.RetryAttempts < 1 {
		return fmt.Errorf("%w: retry attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Client.RetryBackoff < 0 || c.Client.PendingRefetchDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	}

	if c.Cache.AccountsTTL <= 0 || c.Cache.TransactionsTTL <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive", ErrInvalidConfig)
	}

	if budget := c.Client.TransferBudget(); c.Server.WriteTimeout <= budget {
		return fmt.Errorf("%w: server write timeout %s does not cover the %s transfer budget",
			ErrInvalidConfig, c.Server.WriteTimeout, budget)
	}

	if c.Auth.HMACSecret != "" && c.Environment == EnvProd {
		return fmt.Errorf("%w: hmac token verification is not allowed in prod", ErrInvalidConfig)
	}

	return nil
}
