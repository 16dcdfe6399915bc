// Package transfer validates transfer drafts and submits them with an
// idempotency key, retrying transient failures under the same key.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"banca-client/pkg/backend"
	"banca-client/pkg/banking"
	"banca-client/pkg/logging"
	"banca-client/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSubmitInProgress is returned when a submit is already in flight on the pipeline
	ErrSubmitInProgress = errors.New("transfer: submit already in progress")

	// ErrReauthenticate wraps credential failures; the user must sign in again
	ErrReauthenticate = errors.New("transfer: re-authentication required")

	// ErrNotPending is returned by Reconcile for outcomes with nothing to look up
	ErrNotPending = errors.New("transfer: outcome is not pending")
)

// User-facing messages for outcomes the backend did not word.
const (
	MessageCompleted    = "Transfer completed successfully"
	MessagePending      = "Transfer accepted and being processed"
	MessageRejected     = "The transfer was rejected"
	MessageConnectivity = "We could not reach the bank. Your transfer was not confirmed; please try again"
	MessageReauth       = "Your session has expired. Please sign in again"
)

// State is where the pipeline is in the current attempt.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StatePending    State = "pending"
	StateFailed     State = "failed"
)

// Reason tells a rejected failure from a connectivity failure.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonRejected     Reason = "rejected"
	ReasonConnectivity Reason = "connectivity"
)

// Outcome is the result of one attempt.
type Outcome struct {
	Status         banking.TransferStatus  `json:"status"`
	Reason         Reason                  `json:"reason,omitempty"`
	Message        string                  `json:"message"`
	TransferID     string                  `json:"transferId,omitempty"`
	IdempotencyKey string                  `json:"idempotencyKey"`
	Attempts       int                     `json:"attempts"`
	Request        banking.TransferRequest `json:"-"`
	Notification   *Notification           `json:"notification,omitempty"`
}

// Backend is the part of the API the pipeline needs.
type Backend interface {
	CreateTransfer(ctx context.Context, req banking.TransferRequest) (*banking.TransferResult, error)
	GetTransferStatus(ctx context.Context, transferID string) (*banking.TransferResult, error)
}

// Directory is the account cache the pipeline validates against and
// invalidates after money moves.
type Directory interface {
	ListAccounts(ctx context.Context) ([]banking.Account, error)
	Invalidate(ctx context.Context, accountIDs ...string)
	RefreshAfter(ctx context.Context, delay time.Duration, accountIDs ...string) (*banking.AccountList, error)
}

// Config tunes retries and refetching.
type Config struct {
	Limits Limits

	// RetryAttempts is the total number of network attempts per submit (default: 3)
	RetryAttempts int

	// RetryBackoff is the pause before the first retry, doubled after each (default: 500ms)
	RetryBackoff time.Duration

	// PendingRefetchDelay is how long to wait before refetching accounts
	// after a pending outcome (default: 3s)
	PendingRefetchDelay time.Duration
}

// Pipeline drives one transfer form. At most one submit is in flight at a
// time; separate pipelines are independent.
type Pipeline struct {
	backend   Backend
	directory Directory
	validator *Validator
	notifier  Notifier
	metrics   metrics.MetricsCollector
	logger    *logging.Logger
	newKey    func() string
	config    Config

	mu      sync.Mutex
	state   State
	key     string
	pending *Outcome

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier sets where notifications go (default: a LogNotifier).
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithKeyGenerator overrides idempotency key generation.
func WithKeyGenerator(gen func() string) Option {
	return func(p *Pipeline) { p.newKey = gen }
}

// NewPipeline creates an idle pipeline.
func NewPipeline(b Backend, d Directory, config Config, opts ...Option) *Pipeline {
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if config.PendingRefetchDelay <= 0 {
		config.PendingRefetchDelay = 3 * time.Second
	}

	p := &Pipeline{
		backend:   b,
		directory: d,
		validator: NewValidator(config.Limits),
		newKey:    func() string { return uuid.NewString() },
		config:    config,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.metrics = metrics.OrNoOp(p.metrics)
	p.logger = logging.OrGlobal(p.logger, "transfer")
	if p.notifier == nil {
		p.notifier = NewLogNotifier(p.logger)
	}
	p.bgCtx, p.bgCancel = context.WithCancel(context.Background())
	return p
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Key returns the idempotency key of the current or last attempt.
func (p *Pipeline) Key() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key
}

// Validator returns the pipeline's validator.
func (p *Pipeline) Validator() *Validator {
	return p.validator
}

// begin moves idle or terminal states to next; busy states fail. A new
// attempt supersedes any pending outcome, which can still be reconciled
// but no longer moves the pipeline.
func (p *Pipeline) begin(next State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateValidating || p.state == StateSubmitting {
		return ErrSubmitInProgress
	}
	p.state = next
	p.pending = nil
	return nil
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Run validates draft against the user's accounts and submits it under a
// fresh idempotency key. Validation failures return a *ValidationError and
// make no network call.
func (p *Pipeline) Run(ctx context.Context, draft Draft) (*Outcome, error) {
	return p.RunWithKey(ctx, draft, "")
}

// RunWithKey is Run with a caller-chosen idempotency key, for callers that
// resend the same intent themselves. The caller must not reuse key for a
// different intent. An empty key is replaced by a fresh one.
func (p *Pipeline) RunWithKey(ctx context.Context, draft Draft, key string) (*Outcome, error) {
	if err := p.begin(StateValidating); err != nil {
		return nil, err
	}

	accounts, err := p.directory.ListAccounts(ctx)
	if err != nil {
		p.setState(StateIdle)
		if backend.IsUnauthenticated(err) {
			return nil, p.reauthenticate(ctx, "", err)
		}
		return nil, fmt.Errorf("transfer: load accounts: %w", err)
	}

	req, err := p.validator.Validate(draft, accounts)
	if err != nil {
		p.setState(StateIdle)
		return nil, err
	}

	return p.submit(ctx, req, key)
}

// Submit sends an already validated request as a new attempt with a fresh
// idempotency key.
func (p *Pipeline) Submit(ctx context.Context, req banking.TransferRequest) (*Outcome, error) {
	if err := p.begin(StateSubmitting); err != nil {
		return nil, err
	}
	return p.submit(ctx, req, "")
}

func (p *Pipeline) submit(ctx context.Context, req banking.TransferRequest, key string) (*Outcome, error) {
	start := time.Now()
	if key == "" {
		key = p.newKey()
	}
	req.IdempotencyKey = key

	p.mu.Lock()
	p.state = StateSubmitting
	p.key = key
	p.pending = nil
	p.mu.Unlock()

	logger := p.logger.With(zap.String("idempotency_key", key))
	backoff := p.config.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		p.metrics.RecordTransferAttempt(attempt > 1)

		result, err := p.backend.CreateTransfer(ctx, req)
		if err == nil {
			return p.finish(ctx, req, result, attempt, start, StateSubmitting), nil
		}
		lastErr = err

		switch {
		case ctx.Err() != nil:
			return nil, p.cancel(req, ctx.Err())
		case backend.IsUnauthenticated(err):
			p.setState(StateIdle)
			return nil, p.reauthenticate(ctx, key, err)
		case backend.IsRejected(err):
			return p.fail(ctx, req, ReasonRejected, rejectionMessage(backend.Message(err)), attempt, start, StateSubmitting), nil
		}

		// Anything else may or may not have reached the backend; the key
		// makes resending safe.
		logger.Warn("transfer attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.config.RetryAttempts),
			zap.Error(err),
		)
		if attempt == p.config.RetryAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, p.cancel(req, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}

	logger.Error("transfer retries exhausted", zap.Error(lastErr))
	return p.fail(ctx, req, ReasonConnectivity, MessageConnectivity, p.config.RetryAttempts, start, StateSubmitting), nil
}

// finish applies a backend answer. The pipeline moves only while it is
// still in state from; an empty from never moves it.
func (p *Pipeline) finish(ctx context.Context, req banking.TransferRequest, result *banking.TransferResult, attempts int, start time.Time, from State) *Outcome {
	switch result.Status {
	case banking.TransferCompleted:
		p.invalidate(ctx, req)
		return p.conclude(ctx, StateCompleted, &Outcome{
			Status:     banking.TransferCompleted,
			Message:    orMessage(result.Message, MessageCompleted),
			TransferID: result.TransferID,
			Attempts:   attempts,
			Request:    req,
		}, NotifySuccess, start, from)

	case banking.TransferPending:
		outcome := p.conclude(ctx, StatePending, &Outcome{
			Status:     banking.TransferPending,
			Message:    orMessage(result.Message, MessagePending),
			TransferID: result.TransferID,
			Attempts:   attempts,
			Request:    req,
		}, NotifyPending, start, from)
		p.scheduleRefresh(req)
		return outcome

	default:
		return p.fail(ctx, req, ReasonRejected, rejectionMessage(result.Message), attempts, start, from)
	}
}

func (p *Pipeline) fail(ctx context.Context, req banking.TransferRequest, reason Reason, message string, attempts int, start time.Time, from State) *Outcome {
	kind := NotifyRejected
	if reason == ReasonConnectivity {
		kind = NotifyFailure
	}
	return p.conclude(ctx, StateFailed, &Outcome{
		Status:   banking.TransferFailed,
		Reason:   reason,
		Message:  message,
		Attempts: attempts,
		Request:  req,
	}, kind, start, from)
}

// conclude records the outcome and sends its one notification. The
// pipeline moves to state only if it is still in from; a pending outcome
// that moves it becomes the one awaiting reconciliation.
func (p *Pipeline) conclude(ctx context.Context, state State, outcome *Outcome, kind NotificationKind, start time.Time, from State) *Outcome {
	outcome.IdempotencyKey = outcome.Request.IdempotencyKey

	note := Notification{
		Kind:           kind,
		Message:        outcome.Message,
		TransferID:     outcome.TransferID,
		IdempotencyKey: outcome.IdempotencyKey,
		Time:           time.Now(),
	}
	outcome.Notification = &note

	if from != "" {
		p.mu.Lock()
		if p.state == from {
			p.state = state
			if state == StatePending {
				p.pending = outcome
			}
		}
		p.mu.Unlock()
	}
	p.metrics.RecordTransferOutcome(string(outcome.Status), string(outcome.Reason), time.Since(start))
	p.notifier.Notify(ctx, note)

	p.logger.Info("transfer concluded",
		zap.String("idempotency_key", outcome.IdempotencyKey),
		zap.String("status", string(outcome.Status)),
		zap.String("reason", string(outcome.Reason)),
		zap.String("transfer_id", outcome.TransferID),
		zap.Int("attempts", outcome.Attempts),
	)
	return outcome
}

// cancel abandons the attempt. The backend may still execute it, so caches
// are dropped for the next read to reconcile; the user is not notified.
func (p *Pipeline) cancel(req banking.TransferRequest, cause error) error {
	p.setState(StateIdle)
	p.invalidate(context.Background(), req)
	p.logger.Info("transfer abandoned",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Error(cause),
	)
	return cause
}

func (p *Pipeline) reauthenticate(ctx context.Context, key string, cause error) error {
	p.notifier.Notify(ctx, Notification{
		Kind:           NotifyReauthenticate,
		Message:        MessageReauth,
		IdempotencyKey: key,
		Time:           time.Now(),
	})
	return fmt.Errorf("%w: %w", ErrReauthenticate, cause)
}

func (p *Pipeline) invalidate(ctx context.Context, req banking.TransferRequest) {
	p.directory.Invalidate(context.WithoutCancel(ctx), req.SourceAccountID, req.TargetAccountID)
}

// scheduleRefresh refetches accounts after PendingRefetchDelay, in the
// background, to absorb backend propagation lag.
func (p *Pipeline) scheduleRefresh(req banking.TransferRequest) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		_, err := p.directory.RefreshAfter(p.bgCtx, p.config.PendingRefetchDelay, req.SourceAccountID, req.TargetAccountID)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Warn("refetch after pending transfer failed",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err),
			)
		}
	}()
}

// Reconcile looks up a pending outcome and, if the backend has settled it,
// concludes the attempt the usual way. A still-pending answer returns the
// outcome unchanged without a notification.
func (p *Pipeline) Reconcile(ctx context.Context, outcome *Outcome) (*Outcome, error) {
	if outcome == nil || outcome.Status != banking.TransferPending || outcome.TransferID == "" {
		return nil, ErrNotPending
	}

	start := time.Now()
	result, err := p.backend.GetTransferStatus(ctx, outcome.TransferID)
	if err != nil {
		if backend.IsUnauthenticated(err) {
			return nil, p.reauthenticate(ctx, outcome.IdempotencyKey, err)
		}
		return nil, fmt.Errorf("transfer: reconcile %s: %w", outcome.TransferID, err)
	}

	if result.Status == banking.TransferPending {
		return outcome, nil
	}

	// Only the outcome the pipeline is still parked on may move it.
	var from State
	p.mu.Lock()
	if p.state == StatePending && p.pending != nil && p.pending.IdempotencyKey == outcome.IdempotencyKey {
		p.pending = nil
		from = StatePending
	}
	p.mu.Unlock()

	req := outcome.Request
	if req.SourceAccountID == "" {
		req.SourceAccountID = result.SourceAccountID
		req.TargetAccountID = result.TargetAccountID
	}
	req.IdempotencyKey = outcome.IdempotencyKey

	return p.finish(ctx, req, result, outcome.Attempts, start, from), nil
}

// Pending returns the outcome awaiting reconciliation, if any.
func (p *Pipeline) Pending() (*Outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending, p.pending != nil
}

// Close stops background refetches and waits for them.
func (p *Pipeline) Close() {
	p.bgCancel()
	p.bg.Wait()
}

// Wait blocks until scheduled refetches finish, for tests and shutdown.
func (p *Pipeline) Wait() {
	p.bg.Wait()
}

func rejectionMessage(msg string) string {
	return orMessage(msg, MessageRejected)
}

func orMessage(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
