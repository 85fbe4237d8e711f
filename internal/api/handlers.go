package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/database"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/engine"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/lifecycle"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db        *database.DB
	lifecycle *lifecycle.Manager
	engine    *engine.Engine
}

// NewHandler creates a new Handler
func NewHandler(db *database.DB, lc *lifecycle.Manager, eng *engine.Engine) *Handler {
	return &Handler{
		db:        db,
		lifecycle: lc,
		engine:    eng,
	}
}

// CreateAutomation handles POST /automations
func (h *Handler) CreateAutomation(w http.ResponseWriter, r *http.Request) {
	var a models.Automation
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	a.Status = models.StatusPending
	if err := a.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.db.CreateAutomation(&a); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, a)
}

// GetAutomation handles GET /automations/{id}
func (h *Handler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	a, err := h.db.GetAutomationByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, a)
}

// ListAutomations handles GET /automations?user_id=
func (h *Handler) ListAutomations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	automations, err := h.db.GetAutomationsByUser(userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, automations)
}

// DeleteAutomation handles DELETE /automations/{id}
func (h *Handler) DeleteAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.db.DeleteAutomation(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ApproveAutomation handles POST /automations/{id}/approve
func (h *Handler) ApproveAutomation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int, _ string) error {
		return h.lifecycle.Approve(id, models.ActorHuman)
	})
}

// ActivateAutomation handles POST /automations/{id}/activate
func (h *Handler) ActivateAutomation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int, _ string) error {
		return h.lifecycle.Activate(id, models.ActorHuman)
	})
}

// PauseAutomation handles POST /automations/{id}/pause
func (h *Handler) PauseAutomation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int, reason string) error {
		if reason == "" {
			reason = "paused by user"
		}
		return h.lifecycle.Pause(id, reason, models.ActorHuman)
	})
}

// ResumeAutomation handles POST /automations/{id}/resume
func (h *Handler) ResumeAutomation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int, _ string) error {
		return h.lifecycle.Resume(id, models.ActorHuman)
	})
}

// RejectAutomation handles POST /automations/{id}/reject
func (h *Handler) RejectAutomation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int, reason string) error {
		if reason == "" {
			reason = "rejected by user"
		}
		return h.lifecycle.Reject(id, reason, models.ActorHuman)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(id int, reason string) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if err := apply(id, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	a, err := h.db.GetAutomationByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, a)
}

// GetAutomationEvents handles GET /automations/{id}/events
func (h *Handler) GetAutomationEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	events, err := h.db.GetAutomationEvents(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// GetAutomationSummary handles GET /automations/{id}/summary
func (h *Handler) GetAutomationSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	summary, err := h.db.GetAutomationSummary(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetAutomationOrders handles GET /automations/{id}/orders
func (h *Handler) GetAutomationOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	orders, err := h.db.GetOrdersByAutomation(id, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

// GetPendingOrders handles GET /orders/pending?user_id=
func (h *Handler) GetPendingOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	orders, err := h.db.GetPendingApprovalOrders(userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

// ApproveOrder handles POST /orders/{id}/approve
func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.engine.ExecuteApproved(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	order, err := h.db.GetOrderByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// RejectOrder handles POST /orders/{id}/reject
func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.db.GetOrderByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if order.Status != models.OrderStatusPendingApproval {
		http.Error(w, "order is not awaiting approval", http.StatusConflict)
		return
	}

	order.Status = models.OrderStatusRejected
	order.StatusReason = req.Reason
	if order.StatusReason == "" {
		order.StatusReason = "rejected by user"
	}
	if err := h.db.UpdateOrderExecution(order); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// ModifyOrder handles PATCH /orders/{id}
func (h *Handler) ModifyOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Quantity decimal.Decimal `json:"quantity"`
		Price    decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		http.Error(w, "quantity and price must be positive", http.StatusBadRequest)
		return
	}

	if err := h.db.UpdateOrderRequest(id, req.Quantity, req.Price); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	order, err := h.db.GetOrderByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
