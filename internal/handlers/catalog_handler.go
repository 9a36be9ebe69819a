package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warrenbeats/backend/internal/middleware"
	"github.com/warrenbeats/backend/internal/services"
)

type CatalogHandler struct {
	catalog   *services.CatalogService
	validator *services.ValidationHelper
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{
		catalog:   catalog,
		validator: services.NewValidationHelper(),
	}
}

// ListBeats lists the catalog
// @Summary List beats
// @Description List all beats, optionally filtered by a text query over title and genre
// @Tags catalog
// @Produce json
// @Param q query string false "Search query"
// @Success 200 {object} object{beats=[]models.Beat,count=int}
// @Failure 500 {object} services.ErrorResponse
// @Router /beats [get]
func (h *CatalogHandler) ListBeats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	beats, err := h.catalog.ListBeats(r.Context(), query)
	if err != nil {
		log.Printf("[CATALOG] ListBeats failed: %v", err)
		services.SendErrorResponse(w, "Failed to list beats", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"beats": beats,
		"count": len(beats),
	})
}

// AlbumDetail lists available beats in an album
// @Summary Album detail
// @Description List only available beats in a collection
// @Tags catalog
// @Produce json
// @Param albumID path int true "Album ID"
// @Success 200 {object} object{album=models.Album,beats=[]models.Beat}
// @Failure 404 {object} services.ErrorResponse
// @Router /albums/{albumID} [get]
func (h *CatalogHandler) AlbumDetail(w http.ResponseWriter, r *http.Request) {
	albumID, err := strconv.Atoi(chi.URLParam(r, "albumID"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid album id", http.StatusBadRequest, nil)
		return
	}

	album, beats, err := h.catalog.AlbumBeats(r.Context(), albumID)
	if errors.Is(err, services.ErrNotFound) {
		services.SendErrorResponse(w, "Album not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CATALOG] AlbumDetail failed for album %d: %v", albumID, err)
		services.SendErrorResponse(w, "Failed to load album", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"album": album,
		"beats": beats,
	})
}

// FavoriteBeat toggles a beat's favorite flag
// @Summary Toggle beat favorite
// @Tags catalog
// @Produce json
// @Param beatID path int true "Beat ID"
// @Success 200 {object} object{success=bool,is_favorite=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /beats/{beatID}/favorite [post]
func (h *CatalogHandler) FavoriteBeat(w http.ResponseWriter, r *http.Request) {
	beatID, err := strconv.Atoi(chi.URLParam(r, "beatID"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid beat id", http.StatusBadRequest, nil)
		return
	}

	favorite, err := h.catalog.ToggleBeatFavorite(r.Context(), beatID)
	if errors.Is(err, services.ErrNotFound) {
		services.SendErrorResponse(w, "Beat not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		services.SendErrorResponse(w, "Failed to toggle favorite", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "is_favorite": favorite})
}

// FavoriteAlbum toggles an album's favorite flag
// @Summary Toggle album favorite
// @Tags catalog
// @Produce json
// @Param albumID path int true "Album ID"
// @Success 200 {object} object{success=bool,is_favorite=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /albums/{albumID}/favorite [post]
func (h *CatalogHandler) FavoriteAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := strconv.Atoi(chi.URLParam(r, "albumID"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid album id", http.StatusBadRequest, nil)
		return
	}

	favorite, err := h.catalog.ToggleAlbumFavorite(r.Context(), albumID)
	if errors.Is(err, services.ErrNotFound) {
		services.SendErrorResponse(w, "Album not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		services.SendErrorResponse(w, "Failed to toggle favorite", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "is_favorite": favorite})
}

// RateBeat records a buyer's rating
// @Summary Rate a beat
// @Description Record a 1-5 star rating, at most one per buyer per beat
// @Tags catalog
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param beatID path int true "Beat ID"
// @Param request body object{stars=int,review=string} true "Rating"
// @Success 201 {object} object{success=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /beats/{beatID}/rating [post]
func (h *CatalogHandler) RateBeat(w http.ResponseWriter, r *http.Request) {
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
		Stars  int    `json:"stars" validate:"required,min=1,max=5"`
		Review string `json:"review" validate:"max=2000"`
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

	if err := h.catalog.RateBeat(r.Context(), buyer.ID, beatID, req.Stars, req.Review); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}
