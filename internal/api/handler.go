// Package api provides the operational HTTP surface of the signal monitor
// and the live lifecycle event stream.
//
// All prices use shopspring/decimal, never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/signal-monitor/internal/instrument"
	"github.com/atmx/signal-monitor/internal/lifecycle"
	"github.com/atmx/signal-monitor/internal/model"
	"github.com/atmx/signal-monitor/internal/store"
)

// Invalidator drops cached directory entries after hires or channels change.
type Invalidator interface {
	Invalidate(ctx context.Context, traderID string, communityIDs ...string)
}

// Handler serves the signal endpoints.
type Handler struct {
	store       store.SignalStore
	invalidator Invalidator
	now         func() time.Time
}

// NewHandler creates a handler. invalidator may be nil when no directory
// cache is configured.
func NewHandler(st store.SignalStore, invalidator Invalidator) *Handler {
	return &Handler{store: st, invalidator: invalidator, now: time.Now}
}

// --- Request/Response types ---

// CreateSignalRequest is the JSON body for POST /api/v1/signals.
type CreateSignalRequest struct {
	UserID    string            `json:"user_id"`
	Role      model.Role        `json:"role"`
	ID        string            `json:"id,omitempty"`
	TraderID  string            `json:"trader_id"`
	Username  string            `json:"username"`
	Pair      string            `json:"pair"`
	Direction model.Direction   `json:"direction"`
	Leverage  decimal.Decimal   `json:"leverage"`
	Entry     decimal.Decimal   `json:"entry"`
	Stop      decimal.Decimal   `json:"stop"`
	Targets   []decimal.Decimal `json:"targets"`
	Strategy  string            `json:"strategy,omitempty"`
	Risk      string            `json:"risk,omitempty"`
}

// CloseRequest is the JSON body for POST /api/v1/signals/{signalID}/close.
type CloseRequest struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// InvalidateRequest is the JSON body for POST /api/v1/directory/invalidate.
type InvalidateRequest struct {
	TraderID     string   `json:"trader_id"`
	CommunityIDs []string `json:"community_ids"`
}

// SignalResponse is a signal plus its derived state.
type SignalResponse struct {
	model.Signal
	State model.State `json:"state"`
}

func newSignalResponse(sig model.Signal) SignalResponse {
	return SignalResponse{Signal: sig, State: sig.Lifecycle.State()}
}

// mayActOn reports whether the caller can manage a trader's signals: the
// trader themself or an admin.
func mayActOn(role model.Role, userID, traderID string) bool {
	switch role.Kind {
	case model.RoleAdmin:
		return true
	case model.RoleTrader:
		return userID != "" && userID == traderID
	default:
		return false
	}
}

// --- Handlers ---

// GetSignal handles GET /api/v1/signals/{signalID}
func (h *Handler) GetSignal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "signalID")

	sig, err := h.store.GetSignal(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "signal not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get signal failed", "signal_id", id, "err", err)
		writeError(w, "failed to load signal", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, newSignalResponse(*sig))
}

// CreateSignal handles POST /api/v1/signals
func (h *Handler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	var req CreateSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.TraderID == "" {
		writeError(w, "trader_id is required", http.StatusBadRequest)
		return
	}
	if !mayActOn(req.Role, req.UserID, req.TraderID) {
		writeError(w, "only the trader or an admin may publish this signal", http.StatusForbidden)
		return
	}
	pair, err := instrument.Parse(req.Pair)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, "at least one target is required", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	sig := model.Signal{
		ID:        id,
		TraderID:  req.TraderID,
		Username:  req.Username,
		Pair:      pair.String(),
		Direction: model.Direction(strings.ToUpper(string(req.Direction))),
		Leverage:  req.Leverage,
		Entry:     req.Entry,
		Stop:      req.Stop,
		Targets:   req.Targets,
		Strategy:  req.Strategy,
		Risk:      req.Risk,
		Lifecycle: model.Lifecycle{IsNew: true, Events: []model.Event{}},
		CreatedAt: h.now().UTC(),
	}
	if sig.Leverage.IsZero() {
		sig.Leverage = decimal.NewFromInt(1)
	}
	if err := lifecycle.Validate(sig); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.CreateSignal(r.Context(), &sig); err != nil {
		slog.Warn("create signal failed", "signal_id", sig.ID, "err", err)
		writeError(w, "failed to create signal", http.StatusConflict)
		return
	}

	slog.Info("signal published", "signal_id", sig.ID, "trader_id", sig.TraderID, "pair", sig.Pair)
	writeJSON(w, http.StatusCreated, newSignalResponse(sig))
}

// RequestClose handles POST /api/v1/signals/{signalID}/close. The close
// itself happens on the next monitor tick at the then-current price.
func (h *Handler) RequestClose(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "signalID")

	var req CloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sig, err := h.store.GetSignal(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "signal not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get signal failed", "signal_id", id, "err", err)
		writeError(w, "failed to load signal", http.StatusInternalServerError)
		return
	}

	if !mayActOn(req.Role, req.UserID, sig.TraderID) {
		writeError(w, "only the trader or an admin may close this signal", http.StatusForbidden)
		return
	}
	if state := sig.Lifecycle.State(); state != model.StateOpen {
		writeError(w, "signal is "+string(state)+", only OPEN signals can be closed", http.StatusConflict)
		return
	}

	updated, err := h.store.RequestManualClose(r.Context(), id)
	if err != nil {
		slog.Error("request manual close failed", "signal_id", id, "err", err)
		writeError(w, "failed to request close", http.StatusInternalServerError)
		return
	}
	if updated.Version != sig.Version {
		slog.Info("manual close requested", "signal_id", id, "user_id", req.UserID, "role", req.Role.Name)
	}

	writeJSON(w, http.StatusAccepted, newSignalResponse(*updated))
}

// InvalidateDirectory handles POST /api/v1/directory/invalidate
func (h *Handler) InvalidateDirectory(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TraderID == "" && len(req.CommunityIDs) == 0 {
		writeError(w, "trader_id or community_ids is required", http.StatusBadRequest)
		return
	}

	if h.invalidator != nil {
		h.invalidator.Invalidate(r.Context(), req.TraderID, req.CommunityIDs...)
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
