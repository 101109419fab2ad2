// Package server exposes the engine over HTTP/JSON: position operations,
// live account reads, and event-log history.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"StableVault/internal/core"
	"StableVault/internal/observability"
	"StableVault/internal/oracle"
	"StableVault/internal/query"
	"StableVault/internal/solvency"
)

// Server routes API requests to the engine and the history service.
type Server struct {
	engine  *core.Engine
	history *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	engine *core.Engine,
	history *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  engine,
		history: history,
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.health.LivenessHandler).Methods("GET")
	r.HandleFunc("/readyz", s.health.ReadinessHandler).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/params", s.instrument("params", s.handleParams)).Methods("GET")
	api.HandleFunc("/assets", s.instrument("assets", s.handleAssets)).Methods("GET")
	api.HandleFunc("/assets/{asset}/value", s.instrument("asset_value", s.handleAssetValue)).Methods("GET")
	api.HandleFunc("/assets/{asset}/amount", s.instrument("asset_amount", s.handleAssetAmount)).Methods("GET")
	api.HandleFunc("/health/simulate", s.instrument("simulate_health", s.handleSimulateHealth)).Methods("GET")
	api.HandleFunc("/accounts/{user}", s.instrument("account", s.handleAccount)).Methods("GET")
	api.HandleFunc("/accounts/{user}/health", s.instrument("account_health", s.handleAccountHealth)).Methods("GET")
	api.HandleFunc("/accounts/{user}/collateral/{asset}", s.instrument("account_collateral", s.handleCollateral)).Methods("GET")
	api.HandleFunc("/accounts/{user}/history", s.instrument("account_history", s.handleHistory)).Methods("GET")
	api.HandleFunc("/operations/{id}", s.instrument("operation_events", s.handleOperationEvents)).Methods("GET")
	api.HandleFunc("/liquidations", s.instrument("recent_liquidations", s.handleRecentLiquidations)).Methods("GET")

	api.HandleFunc("/positions/deposit", s.instrument("deposit", s.handleDeposit)).Methods("POST")
	api.HandleFunc("/positions/redeem", s.instrument("redeem", s.handleRedeem)).Methods("POST")
	api.HandleFunc("/positions/mint", s.instrument("mint", s.handleMint)).Methods("POST")
	api.HandleFunc("/positions/burn", s.instrument("burn", s.handleBurn)).Methods("POST")
	api.HandleFunc("/positions/deposit-and-mint", s.instrument("deposit_and_mint", s.handleDepositAndMint)).Methods("POST")
	api.HandleFunc("/positions/burn-and-redeem", s.instrument("burn_and_redeem", s.handleBurnAndRedeem)).Methods("POST")
	api.HandleFunc("/liquidations", s.instrument("liquidate", s.handleLiquidate)).Methods("POST")

	return r
}

// instrument records request counts and latency per endpoint.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		if s.metrics != nil {
			s.metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(sw.status)).Inc()
			s.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps engine errors onto status codes: invalid input is 400,
// solvency and liquidation rejections are 409, collaborator failures are
// 502, and a stale oracle makes the whole surface temporarily unusable.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var broken *solvency.HealthFactorBrokenError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrZeroAmount),
		errors.Is(err, core.ErrAssetNotRegistered),
		errors.Is(err, core.ErrInsufficientBalance),
		errors.Is(err, core.ErrInsufficientDebt):
		status = http.StatusBadRequest
	case errors.As(err, &broken),
		errors.Is(err, core.ErrHealthFactorOk),
		errors.Is(err, core.ErrHealthFactorNotImproved):
		status = http.StatusConflict
	case errors.Is(err, core.ErrTransferFailed),
		errors.Is(err, core.ErrMintFailed):
		status = http.StatusBadGateway
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrUnknownFeed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("unclassified API error")
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
