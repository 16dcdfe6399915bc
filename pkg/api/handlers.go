package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"banca-client/pkg/backend"
	"banca-client/pkg/banking"
	"banca-client/pkg/directory"
	"banca-client/pkg/session"
	"banca-client/pkg/transfer"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	maxDraftSize            = 64 << 10
	maxIdempotencyKeyLength = 255
)

// newForm builds a transfer pipeline bound to sess.
func (s *Server) newForm(sess session.Session) (*transfer.Pipeline, error) {
	client := s.deps.Backend.WithSession(sess)
	dir, err := directory.New(s.deps.Store, client, sess.Subject())
	if err != nil {
		return nil, err
	}

	c := s.deps.Config
	return transfer.NewPipeline(client, dir, transfer.Config{
		Limits:              transfer.LimitsFromConfig(c.Transfers),
		RetryAttempts:       c.Client.RetryAttempts,
		RetryBackoff:        c.Client.RetryBackoff,
		PendingRefetchDelay: c.Client.PendingRefetchDelay,
	},
		transfer.WithMetrics(s.deps.Metrics),
		transfer.WithLogger(s.logger.Named("transfer")),
		transfer.WithNotifier(transfer.NewLogNotifier(s.logger.Named("notify"))),
	), nil
}

func (s *Server) client(r *http.Request) *backend.Client {
	return s.deps.Backend.WithSession(sessionFrom(r.Context()))
}

func (s *Server) directory(r *http.Request) (*directory.Directory, error) {
	sess := sessionFrom(r.Context())
	return directory.New(s.deps.Store, s.deps.Backend.WithSession(sess), sess.Subject())
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.client(r).GetProfile(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profile": profile})
}

// handleSeed creates demo data and drops the customer's cached accounts.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	dir, err := s.directory(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	result, err := s.client(r).Seed(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	ids := make([]string, 0, 2)
	for _, id := range []string{result.CheckingAccountID, result.SavingsAccountID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	dir.Invalidate(r.Context(), ids...)

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	dir, err := s.directory(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	list, err := dir.Accounts(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	dir, err := s.directory(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	account, err := dir.Account(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	query, err := parseTransactionQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	dir, err := s.directory(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	page, err := dir.Transactions(r.Context(), mux.Vars(r)["id"], query)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseTransactionQuery reads from, to (RFC 3339 or YYYY-MM-DD) and limit.
func parseTransactionQuery(r *http.Request) (banking.TransactionQuery, error) {
	var q banking.TransactionQuery
	values := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := strings.TrimSpace(values.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return q, errors.New(p.name + " must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		}
		*p.dst = t
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, errors.New("to must not be before from")
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = limit
	}
	return q.Normalize(), nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// handleCreateTransfer validates and submits a draft through the form's
// pipeline. A client-sent Idempotency-Key becomes the attempt's key, so a
// browser resending the same intent after a lost response cannot move
// money twice; without one the pipeline generates a fresh key.
func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var draft transfer.Draft
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDraftSize)).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be a transfer draft")
		return
	}

	key := strings.TrimSpace(r.Header.Get(backend.IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "Idempotency-Key is too long")
		return
	}

	formID := strings.TrimSpace(r.Header.Get(FormIDHeader))
	if formID == "" {
		formID = uuid.NewString()
	}
	w.Header().Set(FormIDHeader, formID)

	p, err := s.pipelines.acquire(sessionFrom(r.Context()), formID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	outcome, err := p.RunWithKey(r.Context(), draft, key)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set(backend.IdempotencyHeader, outcome.IdempotencyKey)
	writeJSON(w, http.StatusOK, outcome)
}

// handleTransferStatus reconciles a pending transfer the gateway submitted,
// or looks up any other transfer directly.
func (s *Server) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if p, outcome, ok := s.pipelines.pending(sessionFrom(r.Context()), id); ok {
		settled, err := p.Reconcile(r.Context(), outcome)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, settled)
		return
	}

	result, err := s.client(r).GetTransferStatus(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeFailure maps domain and backend errors to responses.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var verr *transfer.ValidationError
	var berr *backend.Error

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "validation_failed",
			"message": "The transfer has invalid fields",
			"fields":  verr.Fields,
		})
	case errors.Is(err, transfer.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, "submit_in_progress", "A transfer from this form is already being submitted")
	case errors.Is(err, transfer.ErrReauthenticate), backend.IsUnauthenticated(err):
		writeError(w, http.StatusUnauthorized, "unauthorized", transfer.MessageReauth)
	case errors.Is(err, directory.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Account not found")
	case r.Context().Err() != nil:
		writeError(w, http.StatusGatewayTimeout, "canceled", "The request was canceled")
	case backend.IsRejected(err) && errors.As(err, &berr):
		status := berr.StatusCode
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := berr.Code
		if code == "" {
			code = "rejected"
		}
		message := berr.Message
		if message == "" {
			message = http.StatusText(status)
		}
		writeError(w, status, code, message)
	case backend.IsTransient(err):
		s.logger.Warn("backend unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", transfer.MessageConnectivity)
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
	}
}
