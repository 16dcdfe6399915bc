// Package backend is the REST client for the banking API. A Client is
// constructed explicitly and bound to a user's session; every call runs
// through a circuit breaker with a bounded timeout.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"banca-client/pkg/banking"
	"banca-client/pkg/logging"
	"banca-client/pkg/metrics"
	"banca-client/pkg/resilience"
	"banca-client/pkg/session"

	"go.uber.org/zap"
)

// IdempotencyHeader carries a transfer's idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// maxBodySize bounds how much of a response is read.
const maxBodySize = 4 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.bancainternet.com"
	BaseURL string

	// Environment is sent as X-Environment on every request
	Environment string

	// Timeout bounds every request (default: 30s)
	Timeout time.Duration
}

// Client calls the banking API.
type Client struct {
	baseURL     string
	environment string
	httpClient  *http.Client
	guard       *resilience.Guard
	session     session.Session
	metrics     metrics.MetricsCollector
	logger      *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithGuard replaces the default circuit breaker, e.g. to share one across clients.
func WithGuard(g *resilience.Guard) Option {
	return func(c *Client) { c.guard = g }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithSession binds the client to a user at construction.
func WithSession(s session.Session) Option {
	return func(c *Client) { c.session = s }
}

// NewGuard builds the breaker a Client uses by default. Rejections and
// authentication failures say nothing about backend health and do not count.
func NewGuard(timeout time.Duration, m metrics.MetricsCollector, l *logging.Logger) *resilience.Guard {
	return resilience.NewGuard("backend", resilience.BackendResilientConfig(timeout),
		resilience.WithMetrics(m),
		resilience.WithLogger(l),
		resilience.WithIgnoredErrors(func(err error) bool {
			return IsRejected(err) || IsUnauthenticated(err)
		}),
	)
}

// New creates a client. It has no session until WithSession is applied.
func New(config Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base url is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:     base,
		environment: config.Environment,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.metrics = metrics.OrNoOp(c.metrics)
	c.logger = logging.OrGlobal(c.logger, "backend")
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: config.Timeout}
	}
	if c.guard == nil {
		c.guard = NewGuard(config.Timeout, c.metrics, c.logger)
	}
	return c, nil
}

// WithSession returns a copy of the client bound to s. The copy shares the
// HTTP client and the breaker.
func (c *Client) WithSession(s session.Session) *Client {
	clone := *c
	clone.session = s
	return &clone
}

// Session returns the bound session, or nil.
func (c *Client) Session() session.Session {
	return c.session
}

// Guard returns the client's breaker.
func (c *Client) Guard() *resilience.Guard {
	return c.guard
}

type call struct {
	endpoint string
	method   string
	path     string
	query    url.Values
	body     interface{}
	headers  map[string]string
	anon     bool
}

// do performs one attempt of c and returns the response body of a 2xx.
func (c *Client) do(ctx context.Context, req call) ([]byte, error) {
	start := time.Now()
	data, err := c.attempt(ctx, req)

	class := requestClass(err)
	c.metrics.RecordRequest(req.endpoint, class, time.Since(start))
	if err != nil && class != metrics.ClassCanceled {
		c.logger.Debug("backend call failed",
			zap.String("endpoint", req.endpoint),
			zap.String("class", class),
			zap.Error(err),
		)
	}
	return data, err
}

func (c *Client) attempt(ctx context.Context, req call) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var token string
	if !req.anon {
		if c.session == nil {
			return nil, classifyTransport(req.endpoint, session.ErrNoCredential)
		}
		var err error
		if token, err = c.session.Token(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, classifyTransport(req.endpoint, err)
		}
	}

	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return nil, fmt.Errorf("backend: failed to marshal request: %w", err)
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var data []byte
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("backend: failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		if c.environment != "" {
			httpReq.Header.Set("X-Environment", c.environment)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
		for k, v := range req.headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return fmt.Errorf("backend: failed to read response: %w", err)
		}

		if kind := kindForStatus(resp.StatusCode); kind != nil {
			return statusError(req.endpoint, kind, resp.StatusCode, body)
		}
		data = body
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classifyTransport(req.endpoint, err)
	}
	return data, nil
}

func statusError(endpoint string, kind error, status int, body []byte) *Error {
	e := &Error{Kind: kind, Endpoint: endpoint, StatusCode: status}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Code = payload.Error
		e.Message = payload.Message
		if e.Message == "" {
			e.Message = payload.Error
		}
	}
	return e
}

// ListAccounts fetches the user's accounts with their summary.
func (c *Client) ListAccounts(ctx context.Context) (*banking.AccountList, error) {
	data, err := c.do(ctx, call{endpoint: "accounts.list", method: http.MethodGet, path: "/v1/accounts"})
	if err != nil {
		return nil, err
	}
	return banking.DecodeAccountList(data)
}

// GetAccount fetches one account. The body may be the account itself or
// wrapped as {"account": {...}}.
func (c *Client) GetAccount(ctx context.Context, accountID string) (banking.Account, error) {
	data, err := c.do(ctx, call{
		endpoint: "accounts.get",
		method:   http.MethodGet,
		path:     "/v1/accounts/" + url.PathEscape(accountID),
	})
	if err != nil {
		return banking.Account{}, err
	}

	var envelope struct {
		Account json.RawMessage `json:"account"`
	}
	if json.Unmarshal(data, &envelope) == nil && len(envelope.Account) > 0 {
		data = envelope.Account
	}
	return banking.DecodeAccount(data)
}

// ListTransactions fetches a page of an account's history.
func (c *Client) ListTransactions(ctx context.Context, accountID string, query banking.TransactionQuery) (*banking.TransactionPage, error) {
	data, err := c.do(ctx, call{
		endpoint: "transactions.list",
		method:   http.MethodGet,
		path:     "/v1/accounts/" + url.PathEscape(accountID) + "/transactions",
		query:    query.Values(),
	})
	if err != nil {
		return nil, err
	}
	return banking.DecodeTransactionPage(data)
}

// CreateTransfer submits one transfer attempt. The idempotency key travels
// in the body and in the Idempotency-Key header; a FAILED status in a 2xx
// body is a result, not an error.
func (c *Client) CreateTransfer(ctx context.Context, req banking.TransferRequest) (*banking.TransferResult, error) {
	if req.IdempotencyKey == "" {
		return nil, errors.New("backend: transfer without idempotency key")
	}

	data, err := c.do(ctx, call{
		endpoint: "transfers.create",
		method:   http.MethodPost,
		path:     "/v1/transfers",
		body:     req,
		headers:  map[string]string{IdempotencyHeader: req.IdempotencyKey},
	})
	if err != nil {
		return nil, err
	}
	return banking.DecodeTransferResult(data)
}

// GetTransferStatus looks up a transfer for reconciliation.
func (c *Client) GetTransferStatus(ctx context.Context, transferID string) (*banking.TransferResult, error) {
	data, err := c.do(ctx, call{
		endpoint: "transfers.get",
		method:   http.MethodGet,
		path:     "/v1/transfers/" + url.PathEscape(transferID),
	})
	if err != nil {
		return nil, err
	}
	return banking.DecodeTransferResult(data)
}

// GetProfile fetches the user's profile.
func (c *Client) GetProfile(ctx context.Context) (*banking.Profile, error) {
	data, err := c.do(ctx, call{endpoint: "profile.get", method: http.MethodGet, path: "/v1/profile"})
	if err != nil {
		return nil, err
	}
	return banking.DecodeProfile(data)
}

// Seed asks the backend to create demo accounts and transactions.
func (c *Client) Seed(ctx context.Context) (*banking.SeedResult, error) {
	data, err := c.do(ctx, call{endpoint: "seed", method: http.MethodPost, path: "/v1/seed"})
	if err != nil {
		return nil, err
	}
	return banking.DecodeSeedResult(data)
}

// Health checks the backend without a credential.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, call{endpoint: "health", method: http.MethodGet, path: "/health", anon: true})
	return err
}
