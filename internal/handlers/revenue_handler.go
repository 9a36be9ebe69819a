package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/warrenbeats/backend/internal/services"
)

// RevenueHandler exposes read-only rollups over the transaction ledger.
type RevenueHandler struct {
	ledger *services.LedgerService
}

func NewRevenueHandler(ledger *services.LedgerService) *RevenueHandler {
	return &RevenueHandler{ledger: ledger}
}

// Stats returns aggregate revenue statistics
// @Summary Revenue statistics
// @Description Total, average, and today's revenue over completed transactions
// @Tags revenue
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.RevenueStats
// @Failure 500 {object} services.ErrorResponse
// @Router /revenue/stats [get]
func (h *RevenueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		log.Printf("[REVENUE] Stats failed: %v", err)
		services.SendErrorResponse(w, "Failed to aggregate revenue", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// Daily returns per-day revenue over a trailing window
// @Summary Daily revenue
// @Tags revenue
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days (default 30, max 365)"
// @Success 200 {array} models.DailyRevenue
// @Failure 500 {object} services.ErrorResponse
// @Router /revenue/daily [get]
func (h *RevenueHandler) Daily(w http.ResponseWriter, r *http.Request) {
	days := 30
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 && d <= 365 {
			days = d
		}
	}

	daily, err := h.ledger.DailyRevenue(r.Context(), days)
	if err != nil {
		log.Printf("[REVENUE] Daily failed: %v", err)
		services.SendErrorResponse(w, "Failed to aggregate daily revenue", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(daily)
}

// GenerateReport upserts today's revenue report
// @Summary Generate daily revenue report
// @Tags revenue
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.RevenueReport
// @Failure 500 {object} services.ErrorResponse
// @Router /revenue/report [post]
func (h *RevenueHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.GenerateDailyReport(r.Context())
	if err != nil {
		log.Printf("[REVENUE] Report generation failed: %v", err)
		services.SendErrorResponse(w, "Failed to generate report", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
