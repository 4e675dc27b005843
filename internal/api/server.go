// Package api exposes the session control and ledger query surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agent-trader/internal/engine"
	"agent-trader/internal/errors"
	"agent-trader/internal/events"
	"agent-trader/internal/ledger"
	"agent-trader/internal/models"
	"agent-trader/internal/modes"
)

// Server is the HTTP surface over the engine and ledger.
type Server struct {
	engine   *engine.Engine
	store    ledger.Store
	notifier *events.Notifier
	logger   zerolog.Logger
	httpSrv  *http.Server
}

// NewServer creates the API server listening on addr.
func NewServer(addr string, eng *engine.Engine, store ledger.Store, notifier *events.Notifier, logger zerolog.Logger) *Server {
	s := &Server{
		engine:   eng,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("POST /agents", s.handleCreateAgent)
	mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	mux.HandleFunc("POST /agents/{id}/start", s.handleStart)
	mux.HandleFunc("GET /agents/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /agents/{id}/history", s.handleHistory)
	mux.HandleFunc("POST /agents/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /agents/{id}/holdings", s.handleHoldings)
	mux.HandleFunc("GET /agents/{id}/transactions", s.handleTransactions)
	mux.HandleFunc("GET /agents/{id}/performance", s.handlePerformance)
	mux.HandleFunc("GET /events", s.handleEvents)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}
	return s
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("API server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

type createAgentRequest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Model           string  `json:"model"`
	InitialFunds    string  `json:"initialFunds"`
	MaxPositionSize float64 `json:"maxPositionSize"`
	Mode            string  `json:"mode"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	agent, err := buildAgent(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.CreateAgent(r.Context(), agent); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

type startRequest struct {
	// Mode overrides the agent's configured mode for this run only.
	Mode string `json:"mode"`
	Task string `json:"task"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := s.engine.Start(r.Context(), r.PathValue("id"), models.Mode(req.Mode), req.Task)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": session.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	session, snapshot, err := s.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":           session,
		"financialSnapshot": snapshot,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	status := models.SessionStatus(r.URL.Query().Get("status"))

	sessions, err := s.engine.History(r.Context(), r.PathValue("id"), limit, status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Cancel(r.Context(), r.PathValue("id"))
	if errors.Is(err, errors.ErrSessionNotRunning) {
		writeJSON(w, http.StatusOK, map[string]bool{"cancelled": false})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.store.GetHoldings(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	txs, err := s.store.GetTransactions(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, _ = time.Parse("2006-01-02", raw)
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, _ = time.Parse("2006-01-02", raw)
	}

	snaps, err := s.store.GetPerformance(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrAgentNotFound), errors.Is(err, errors.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrActionNotAllowed), errors.Is(err, errors.ErrAgentLocked):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		var vErr *errors.ValidationError
		if errors.As(err, &vErr) {
			status = http.StatusBadRequest
		}
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func buildAgent(req createAgentRequest) (*models.Agent, error) {
	if req.Name == "" {
		return nil, errors.NewValidationError("name", req.Name, "is required")
	}
	funds, err := decimal.NewFromString(req.InitialFunds)
	if err != nil {
		return nil, errors.NewValidationError("initialFunds", req.InitialFunds, "must be a decimal number")
	}
	mode := models.Mode(req.Mode)
	if _, err := modes.Resolve(mode); err != nil {
		return nil, errors.NewValidationError("mode", req.Mode, "unknown mode")
	}
	maxPos := req.MaxPositionSize
	if maxPos <= 0 || maxPos > 1 {
		maxPos = 0.2
	}

	now := time.Now().UTC()
	return &models.Agent{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Description:     req.Description,
		Model:           req.Model,
		InitialFunds:    funds,
		CurrentFunds:    funds,
		MaxPositionSize: maxPos,
		Status:          models.AgentActive,
		Mode:            mode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
