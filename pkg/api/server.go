// Package api is the HTTP gateway the browser front-end talks to. Each
// request's bearer token becomes an explicit session; accounts are served
// through the directory cache and transfers through a per-form pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"banca-client/pkg/backend"
	"banca-client/pkg/config"
	"banca-client/pkg/directory"
	"banca-client/pkg/logging"
	"banca-client/pkg/metrics"
	metricsmemory "banca-client/pkg/metrics/memory"
	"banca-client/pkg/session"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the gateway HTTP server.
type Server struct {
	deps      Dependencies
	router    *mux.Router
	server    *http.Server
	config    ServerConfig
	pipelines *pipelineRegistry
	logger    *logging.Logger
	started   time.Time
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses; must exceed a transfer's full retry
	// budget (see config.ClientConfig.TransferBudget)
	WriteTimeout time.Duration

	// FormIdleTimeout drops transfer forms nobody has used for this long (default: 15m)
	FormIdleTimeout time.Duration
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:         ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    150 * time.Second,
		FormIdleTimeout: 15 * time.Minute,
	}
}

// ServerConfigFrom maps the application's server settings.
func ServerConfigFrom(c config.ServerConfig) ServerConfig {
	sc := DefaultServerConfig()
	if c.Address != "" {
		sc.Address = c.Address
	}
	if c.ReadTimeout > 0 {
		sc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		sc.WriteTimeout = c.WriteTimeout
	}
	return sc
}

// Snapshotter exposes a point-in-time copy of collected metrics.
type Snapshotter interface {
	Snapshot() metricsmemory.Snapshot
}

// Dependencies are the components the gateway serves. Backend has no
// session; the gateway binds one per request.
type Dependencies struct {
	Config  config.Config
	Backend *backend.Client
	Store   *directory.Store
	Metrics metrics.MetricsCollector

	// Verifier checks every customer request's bearer token
	Verifier *session.Verifier

	// Snapshots backs /metrics/json when set
	Snapshots Snapshotter

	// Registry backs /metrics and receives the HTTP metrics when set
	Registry *prometheus.Registry

	Logger *logging.Logger
}

// NewServer creates the gateway. It fails without a token verifier or when
// the HTTP metrics cannot be registered.
func NewServer(deps Dependencies, config ServerConfig) (*Server, error) {
	if deps.Verifier == nil {
		return nil, errors.New("api: a token verifier is required")
	}
	if config.FormIdleTimeout <= 0 {
		config.FormIdleTimeout = 15 * time.Minute
	}
	deps.Metrics = metrics.OrNoOp(deps.Metrics)

	s := &Server{
		deps:    deps,
		config:  config,
		logger:  logging.OrGlobal(deps.Logger, "api"),
		started: time.Now(),
	}
	s.pipelines = newPipelineRegistry(s.newForm, config.FormIdleTimeout)

	r := mux.NewRouter()

	if deps.Registry != nil {
		hm := newHTTPMetrics("banca_gateway")
		if err := hm.register(deps.Registry); err != nil {
			return nil, err
		}
		r.Use(hm.middleware)
	}

	// Health and status endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	// Metrics endpoints
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)

	// Public configuration
	r.HandleFunc("/v1/config", s.handleConfig).Methods(http.MethodGet)

	// Customer endpoints
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.authenticate)
	v1.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
	v1.HandleFunc("/seed", s.handleSeed).Methods(http.MethodPost)
	v1.HandleFunc("/accounts", s.handleAccounts).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}", s.handleAccount).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{id}/transactions", s.handleTransactions).Methods(http.MethodGet)
	v1.HandleFunc("/transfers", s.handleCreateTransfer).Methods(http.MethodPost)
	v1.HandleFunc("/transfers/{id}", s.handleTransferStatus).Methods(http.MethodGet)

	s.router = r
	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("gateway listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server and the transfer forms.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.pipelines.closeAll()
	return err
}

// handleHealth returns a simple health check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus returns detailed status information.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "running",
		"timestamp":   time.Now().Unix(),
		"uptime":      time.Since(s.started).String(),
		"environment": s.deps.Config.Environment,
		"forms":       s.pipelines.len(),
	}
	if s.deps.Backend != nil {
		response["backendCircuit"] = s.deps.Backend.Guard().State().String()
	}
	if s.deps.Store != nil {
		c := s.deps.Store.Chain()
		response["cache"] = map[string]interface{}{
			"layers": c.String(),
			"warmup": c.WriterStats(),
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleMetrics returns metrics in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeError(w, http.StatusNotFound, "metrics_unavailable", "Prometheus metrics are not enabled")
		return
	}
	promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleMetricsJSON returns metrics in JSON format.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if s.deps.Snapshots == nil {
		writeError(w, http.StatusNotFound, "metrics_unavailable", "Metrics collector does not support JSON snapshot")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Snapshots.Snapshot())
}

// handleConfig returns the settings the front-end needs before sign-in.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Config
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"environment": c.Environment,
		"region":      c.Region,
		"app": map[string]string{
			"name":        c.App.Name,
			"version":     c.App.Version,
			"description": c.App.Description,
		},
		"cognito": map[string]string{
			"userPoolId":       c.Cognito.UserPoolID,
			"userPoolClientId": c.Cognito.UserPoolClientID,
			"domain":           c.Cognito.Domain,
			"identityPoolId":   c.Cognito.IdentityPoolID,
		},
		"features": map[string]bool{
			"mfaEnabled":           c.Features.MFAEnabled,
			"darkModeEnabled":      c.Features.DarkModeEnabled,
			"notificationsEnabled": c.Features.NotificationsEnabled,
		},
		"transfers": map[string]interface{}{
			"dailyLimit":    c.Transfers.DailyLimit,
			"minAmount":     c.Transfers.MinAmount,
			"maxAmount":     c.Transfers.MaxAmount,
			"maxNoteLength": c.Transfers.MaxNoteLength,
		},
		"ui": map[string]string{
			"theme":    c.UI.Theme,
			"language": c.UI.Language,
			"locale":   c.UI.Locale,
			"currency": c.UI.Currency,
		},
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes the {error, message} body the backend also uses.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}
