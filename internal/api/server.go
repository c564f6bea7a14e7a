// Package api serves the dashboard: a JSON REST surface over the engine
// and stores, plus a websocket hub pushing live execution events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/engine"
	"github.com/biodigitss-hash/CEXMasterP/internal/observability"
	"github.com/biodigitss-hash/CEXMasterP/internal/storage"
)

// defaultListLimit bounds unpaginated list endpoints.
const defaultListLimit = 50

// Scanner triggers one detector cycle on demand.
type Scanner interface {
	ScanOnce(ctx context.Context) ([]*domain.Opportunity, error)
}

// Options contains configuration for creating a Server.
type Options struct {
	Engine  *engine.Engine
	Scanner Scanner // nil disables POST /api/scan

	Opportunities storage.OpportunityStore
	Executions    storage.ExecutionStore
	Steps         storage.ExecutionStepStore
	Settings      storage.SettingsStore

	Hub    *Hub // nil disables /ws
	Logger *log.Logger
}

// Server is the dashboard HTTP surface.
type Server struct {
	engine        *engine.Engine
	scanner       Scanner
	opportunities storage.OpportunityStore
	executions    storage.ExecutionStore
	steps         storage.ExecutionStepStore
	settings      storage.SettingsStore
	hub           *Hub
	logger        *log.Logger
}

// NewServer creates the dashboard server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[api] ", log.LstdFlags)
	}
	return &Server{
		engine:        opts.Engine,
		scanner:       opts.Scanner,
		opportunities: opts.Opportunities,
		executions:    opts.Executions,
		steps:         opts.Steps,
		settings:      opts.Settings,
		hub:           opts.Hub,
		logger:        logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("GET /api/executions/active", s.handleActiveExecutions)
	mux.HandleFunc("GET /api/executions/{id}", s.handleExecution)
	mux.HandleFunc("POST /api/executions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/activity", s.handleActivity)
	mux.HandleFunc("GET /api/opportunities", s.handleOpportunities)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	}
	return mux
}

// executeRequest is the POST /api/execute body.
type executeRequest struct {
	OpportunityID string          `json:"opportunity_id"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmed     bool            `json:"confirmed"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.OpportunityID == "" {
		writeError(w, http.StatusBadRequest, "opportunity_id is required")
		return
	}
	id, err := s.engine.Execute(r.Context(), req.OpportunityID, req.Amount, req.Confirmed)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"execution_id": id})
}

func (s *Server) handleExecution(w http.ResponseWriter, r *http.Request) {
	exec, steps, err := s.engine.Execution(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution": executionJSON(exec),
		"steps":     stepsJSON(steps),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "cancelling"})
}

func (s *Server) handleActiveExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.executions.ListActive(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(execs))
	for _, e := range execs {
		out = append(out, executionJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": out})
}

// handleActivity returns recent executions with a per-execution step
// summary, newest first.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	execs, err := s.executions.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(execs))
	for _, e := range execs {
		entry := executionJSON(e)
		steps, err := s.steps.ListByExecution(r.Context(), e.ExecutionID)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		entry["step_count"] = len(steps)
		if len(steps) > 0 {
			last := steps[len(steps)-1]
			entry["last_step"] = last.Step
			entry["last_step_outcome"] = string(last.Outcome)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := s.opportunities.ListRecent(r.Context(), queryLimit(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(opps))
	for _, o := range opps {
		out = append(out, opportunityJSON(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": out})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	found, err := s.scanner.ScanOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(found))
	for _, o := range found {
		out = append(out, opportunityJSON(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": len(found), "opportunities": out})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.settings.Get(r.Context())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.writeEngineError(w, err)
			return
		}
		def := domain.DefaultSettings()
		stored = &def
	}
	writeJSON(w, http.StatusOK, settingsJSON(stored))
}

// settingsRequest is the PUT /api/settings body. Pointer fields
// distinguish "absent" from zero so a partial update keeps prior values.
type settingsRequest struct {
	LiveMode              *bool            `json:"live_mode"`
	TargetSellSpreadPct   *decimal.Decimal `json:"target_sell_spread_pct"`
	SpreadCheckIntervalS  *int             `json:"spread_check_interval_s"`
	MaxWaitTimeS          *int             `json:"max_wait_time_s"`
	SlippageTolerancePct  *decimal.Decimal `json:"slippage_tolerance_pct"`
	MinSpreadThresholdPct *decimal.Decimal `json:"min_spread_threshold_pct"`
	MaxTradeAmount        *decimal.Decimal `json:"max_trade_amount"`
	TelegramEnabled       *bool            `json:"telegram_enabled"`
	TelegramChatID        *string          `json:"telegram_chat_id"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	current, err := s.settings.Get(r.Context())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.writeEngineError(w, err)
			return
		}
		def := domain.DefaultSettings()
		current = &def
	}

	if req.LiveMode != nil {
		current.LiveMode = *req.LiveMode
	}
	if req.TargetSellSpreadPct != nil {
		current.TargetSellSpreadPct = *req.TargetSellSpreadPct
	}
	if req.SpreadCheckIntervalS != nil {
		current.SpreadCheckIntervalS = *req.SpreadCheckIntervalS
	}
	if req.MaxWaitTimeS != nil {
		current.MaxWaitTimeS = *req.MaxWaitTimeS
	}
	if req.SlippageTolerancePct != nil {
		current.SlippageTolerancePct = *req.SlippageTolerancePct
	}
	if req.MinSpreadThresholdPct != nil {
		current.MinSpreadThresholdPct = *req.MinSpreadThresholdPct
	}
	if req.MaxTradeAmount != nil {
		current.MaxTradeAmount = *req.MaxTradeAmount
	}
	if req.TelegramEnabled != nil {
		current.TelegramEnabled = *req.TelegramEnabled
	}
	if req.TelegramChatID != nil {
		current.TelegramChatID = *req.TelegramChatID
	}
	current.UpdatedAt = time.Now().UnixMilli()

	if err := s.settings.Put(r.Context(), current); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logger.Printf("settings updated (live=%t, threshold=%s%%)", current.LiveMode, current.MinSpreadThresholdPct)
	writeJSON(w, http.StatusOK, settingsJSON(current))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.executions.Stats(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_executions": stats.TotalExecutions,
		"completed":        stats.Completed,
		"failed":           stats.Failed,
		"active":           stats.Active,
		"success_rate":     stats.SuccessRate,
		"total_profit":     stats.TotalProfit.String(),
	})
}

// writeEngineError maps engine and storage sentinels to status codes:
// validation faults 400, unknown records 404, duplicate active executions
// 409, gate rejections 422.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrAlreadyExecuting):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNotProfitable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}

func opportunityJSON(o *domain.Opportunity) map[string]any {
	return map[string]any{
		"opportunity_id": o.OpportunityID,
		"token_symbol":   o.TokenSymbol,
		"pair":           o.Pair,
		"buy_venue":      o.BuyVenue,
		"sell_venue":     o.SellVenue,
		"buy_price":      o.BuyPrice.String(),
		"sell_price":     o.SellPrice.String(),
		"spread_pct":     o.SpreadPct.String(),
		"confidence":     o.Confidence,
		"capital":        o.Capital.String(),
		"detected_at":    o.DetectedAt,
	}
}

func stepsJSON(steps []*domain.ExecutionStep) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for _, st := range steps {
		out = append(out, map[string]any{
			"step":       st.Step,
			"outcome":    string(st.Outcome),
			"details":    st.Details,
			"live":       st.Live,
			"created_at": st.CreatedAt,
		})
	}
	return out
}

func settingsJSON(s *domain.Settings) map[string]any {
	return map[string]any{
		"live_mode":                s.LiveMode,
		"target_sell_spread_pct":   s.TargetSellSpreadPct.String(),
		"spread_check_interval_s":  s.SpreadCheckIntervalS,
		"max_wait_time_s":          s.MaxWaitTimeS,
		"slippage_tolerance_pct":   s.SlippageTolerancePct.String(),
		"min_spread_threshold_pct": s.MinSpreadThresholdPct.String(),
		"max_trade_amount":         s.MaxTradeAmount.String(),
		"telegram_enabled":         s.TelegramEnabled,
		"telegram_chat_id":         s.TelegramChatID,
		"updated_at":               s.UpdatedAt,
	}
}
