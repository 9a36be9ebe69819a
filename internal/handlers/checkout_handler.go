package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warrenbeats/backend/internal/config"
	"github.com/warrenbeats/backend/internal/middleware"
	"github.com/warrenbeats/backend/internal/services"
)

// CheckoutHandler owns the purchase-reservation-download surface: beginning
// a checkout, taking the gateway callback, and gated downloads.
type CheckoutHandler struct {
	payments  *services.PaymentService
	downloads *services.DownloadService
	catalog   *services.CatalogService
	config    *config.CheckoutConfig
	validator *services.ValidationHelper
}

func NewCheckoutHandler(payments *services.PaymentService, downloads *services.DownloadService, catalog *services.CatalogService, cfg *config.CheckoutConfig) *CheckoutHandler {
	return &CheckoutHandler{
		payments:  payments,
		downloads: downloads,
		catalog:   catalog,
		config:    cfg,
		validator: services.NewValidationHelper(),
	}
}

// Purchase begins a reservation and payment session
// @Summary Purchase a beat
// @Description Reserve the beat, open a pending transaction and return the gateway payment link
// @Tags checkout
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param beatID path int true "Beat ID"
// @Param request body object{method=string,name=string,email=string,phone=string} true "Checkout request"
// @Success 200 {object} services.Checkout
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /beats/{beatID}/purchase [post]
func (h *CheckoutHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	beatID, err := strconv.Atoi(chi.URLParam(r, "beatID"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid beat id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Method string `json:"method" validate:"required,oneof=stripe paypal bank_transfer other"`
		Name   string `json:"name" validate:"required,max=200"`
		Email  string `json:"email" validate:"required,email"`
		Phone  string `json:"phone" validate:"max=20"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	buyer, err := h.catalog.BuyerByUserID(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Buyer profile not found", http.StatusForbidden, nil)
		return
	}

	checkout, err := h.payments.BeginCheckout(r.Context(), buyer.ID, beatID, req.Method, services.Customer{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	switch {
	case errors.Is(err, services.ErrNotFound):
		services.SendErrorResponse(w, "Beat not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, services.ErrAlreadyReserved):
		services.SendErrorResponse(w, "Beat is currently reserved by another buyer", http.StatusConflict, nil)
		return
	case errors.Is(err, services.ErrGateway):
		log.Printf("[CHECKOUT] Gateway error for beat %d: %v", beatID, err)
		services.SendErrorResponse(w, "Payment gateway unavailable, please try again", http.StatusBadGateway, nil)
		return
	case errors.Is(err, services.ErrSessionStore):
		log.Printf("[CHECKOUT] Session store unavailable for beat %d: %v", beatID, err)
		services.SendErrorResponse(w, "Checkout is temporarily unavailable, please try again", http.StatusServiceUnavailable, nil)
		return
	case err != nil:
		log.Printf("[CHECKOUT] Purchase failed for beat %d: %v", beatID, err)
		services.SendErrorResponse(w, "Failed to start checkout", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(checkout)
}

// PaymentCallback is the gateway return hook
// @Summary Payment gateway callback
// @Description Resolve the checkout session exactly once and dispatch the outcome
// @Tags checkout
// @Produce octet-stream
// @Param status query string true "Gateway status"
// @Param tx_ref query string true "Transaction reference"
// @Success 200 {file} binary
// @Failure 302 {string} string "Redirect to error page"
// @Router /payment/callback [get]
func (h *CheckoutHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	txRef := r.URL.Query().Get("tx_ref")
	log.Printf("[CHECKOUT] Callback: status=%s, tx_ref=%s", status, txRef)

	if txRef == "" {
		h.redirectError(w, r, "Invalid payment session. Please try again.")
		return
	}

	session, err := h.payments.ResolveCallback(r.Context(), status, txRef)
	if errors.Is(err, services.ErrInvalidSession) {
		h.redirectError(w, r, "Invalid payment session. Please try again.")
		return
	}
	if err != nil {
		log.Printf("[CHECKOUT] Callback resolution failed for %s: %v", txRef, err)
		h.redirectError(w, r, "Payment could not be processed. Please try again.")
		return
	}

	switch status {
	case services.CallbackSuccessful:
		// Deliver immediately so the buyer gets the file they just paid
		// for, before the quota can be consumed elsewhere.
		h.deliver(w, r, session.BuyerID, session.BeatID)
	case services.CallbackCancelled:
		h.redirectError(w, r, "Payment was cancelled. Please try again.")
	default:
		h.redirectError(w, r, "Payment failed. Please try again.")
	}
}

// Download is the direct download endpoint
// @Summary Download a purchased beat
// @Description Deliver the asset if the buyer holds a completed transaction and quota remains
// @Tags checkout
// @Produce octet-stream
// @Security BearerAuth
// @Param beatID path int true "Beat ID"
// @Success 200 {file} binary
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /beats/{beatID}/download [get]
func (h *CheckoutHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	beatID, err := strconv.Atoi(chi.URLParam(r, "beatID"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid beat id", http.StatusBadRequest, nil)
		return
	}

	buyer, err := h.catalog.BuyerByUserID(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Buyer profile not found", http.StatusForbidden, nil)
		return
	}

	h.deliver(w, r, buyer.ID, beatID)
}

// DownloadHistory lists the buyer's deliveries
// @Summary Download history
// @Tags checkout
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.DownloadHistory
// @Failure 401 {object} services.ErrorResponse
// @Router /downloads [get]
func (h *CheckoutHandler) DownloadHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	buyer, err := h.catalog.BuyerByUserID(r.Context(), userID)
	if err != nil {
		services.SendErrorResponse(w, "Buyer profile not found", http.StatusForbidden, nil)
		return
	}

	history, err := h.downloads.History(r.Context(), buyer.ID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch download history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

func (h *CheckoutHandler) deliver(w http.ResponseWriter, r *http.Request, buyerID, beatID int) {
	delivery, err := h.downloads.AuthorizeAndDeliver(r.Context(), buyerID, beatID)
	switch {
	case errors.Is(err, services.ErrNotPurchased):
		services.SendErrorResponse(w, "You have not purchased this beat", http.StatusForbidden, nil)
		return
	case errors.Is(err, services.ErrExhausted):
		services.SendErrorResponse(w, "Download limit reached for this beat", http.StatusForbidden, nil)
		return
	case errors.Is(err, services.ErrAssetMissing):
		services.SendErrorResponse(w, "Audio file is not available", http.StatusNotFound, nil)
		return
	case errors.Is(err, services.ErrNotFound):
		services.SendErrorResponse(w, "Beat not found", http.StatusNotFound, nil)
		return
	case err != nil:
		log.Printf("[CHECKOUT] Delivery failed for beat %d, buyer %d: %v", beatID, buyerID, err)
		services.SendErrorResponse(w, "Failed to deliver download", http.StatusInternalServerError, nil)
		return
	}
	defer delivery.Asset.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, delivery.Filename))
	if _, err := io.Copy(w, delivery.Asset); err != nil {
		log.Printf("[CHECKOUT] Stream interrupted for beat %d: %v", beatID, err)
	}
}

func (h *CheckoutHandler) redirectError(w http.ResponseWriter, r *http.Request, message string) {
	target := h.config.ErrorRedirect + "?message=" + url.QueryEscape(message)
	http.Redirect(w, r, target, http.StatusFound)
}
