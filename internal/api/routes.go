package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Automation lifecycle
	api.HandleFunc("/automations", handler.CreateAutomation).Methods("POST")
	api.HandleFunc("/automations", handler.ListAutomations).Methods("GET")
	api.HandleFunc("/automations/{id}", handler.GetAutomation).Methods("GET")
	api.HandleFunc("/automations/{id}", handler.DeleteAutomation).Methods("DELETE")
	api.HandleFunc("/automations/{id}/approve", handler.ApproveAutomation).Methods("POST")
	api.HandleFunc("/automations/{id}/activate", handler.ActivateAutomation).Methods("POST")
	api.HandleFunc("/automations/{id}/pause", handler.PauseAutomation).Methods("POST")
	api.HandleFunc("/automations/{id}/resume", handler.ResumeAutomation).Methods("POST")
	api.HandleFunc("/automations/{id}/reject", handler.RejectAutomation).Methods("POST")
	api.HandleFunc("/automations/{id}/events", handler.GetAutomationEvents).Methods("GET")
	api.HandleFunc("/automations/{id}/summary", handler.GetAutomationSummary).Methods("GET")
	api.HandleFunc("/automations/{id}/orders", handler.GetAutomationOrders).Methods("GET")

	// Manual approval queue
	api.HandleFunc("/orders/pending", handler.GetPendingOrders).Methods("GET")
	api.HandleFunc("/orders/{id}/approve", handler.ApproveOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/reject", handler.RejectOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", handler.ModifyOrder).Methods("PATCH")

	return r
}
