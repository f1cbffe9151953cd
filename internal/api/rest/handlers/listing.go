package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/engine"
	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/internal/repository/postgres"
	"github.com/dealscope/valuation-engine/internal/services"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/validator"
)

// ListingHandler handles listing and valuation HTTP requests
type ListingHandler struct {
	logger           *logger.Logger
	valuationService *services.ValuationService
}

// NewListingHandler creates a new listing handler
func NewListingHandler(log *logger.Logger, valuationService *services.ValuationService) *ListingHandler {
	return &ListingHandler{
		logger:           log,
		valuationService: valuationService,
	}
}

// CreateListingRequest represents the request to create a listing
type CreateListingRequest struct {
	Title      string                   `json:"title" validate:"required"`
	BasePrice  float64                  `json:"base_price" validate:"gte=0"`
	Attributes models.ListingAttributes `json:"attributes"`
}

// UpdateComponentsRequest represents a base price or attribute edit
type UpdateComponentsRequest struct {
	BasePrice  *float64                 `json:"base_price,omitempty"`
	Attributes models.ListingAttributes `json:"attributes,omitempty"`
}

// Create creates a new listing
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.valuationService.CreateListing(r.Context(), req.Title, req.BasePrice, req.Attributes)
	if err != nil {
		h.logger.Error("Failed to create listing", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to create listing")
		return
	}

	respondJSON(w, http.StatusCreated, listing)
}

// Get retrieves a listing by ID
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	listing, err := h.valuationService.GetListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Listing not found")
			return
		}
		h.logger.Error("Failed to get listing", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to get listing")
		return
	}

	respondJSON(w, http.StatusOK, listing)
}

// List retrieves listings with pagination
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	listings, err := h.valuationService.ListListings(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list listings", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list listings")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
	})
}

// UpdateComponents applies a base price or attribute edit
func (h *ListingHandler) UpdateComponents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	var req UpdateComponentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BasePrice != nil && *req.BasePrice < 0 {
		respondError(w, http.StatusBadRequest, "Base price must not be negative")
		return
	}

	listing, err := h.valuationService.UpdateListingComponents(r.Context(), id, req.BasePrice, req.Attributes)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Listing not found")
			return
		}
		h.logger.Error("Failed to update listing", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to update listing")
		return
	}

	respondJSON(w, http.StatusOK, listing)
}

// Evaluate runs a synchronous evaluation pass and returns the breakdown
// without persisting it.
func (h *ListingHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	breakdown, err := h.valuationService.EvaluateListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownListing) {
			respondError(w, http.StatusNotFound, "Listing not found")
			return
		}
		h.logger.Error("Failed to evaluate listing", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to evaluate listing")
		return
	}

	respondJSON(w, http.StatusOK, breakdown)
}

// Recalculate schedules an asynchronous recalculation
func (h *ListingHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	if err := h.valuationService.RecalculateListing(r.Context(), id); err != nil {
		if errors.Is(err, engine.ErrUnknownListing) {
			respondError(w, http.StatusNotFound, "Listing not found")
			return
		}
		h.logger.Error("Failed to schedule recalculation", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to schedule recalculation")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":     "scheduled",
		"listing_id": id.String(),
	})
}

// GetBreakdown returns the latest persisted breakdown for a listing
func (h *ListingHandler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	breakdown, err := h.valuationService.GetLatestBreakdown(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "No breakdown for listing")
			return
		}
		h.logger.Error("Failed to get breakdown", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to get breakdown")
		return
	}

	respondJSON(w, http.StatusOK, breakdown)
}

// ListBreakdowns returns recent breakdowns for a listing
func (h *ListingHandler) ListBreakdowns(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	breakdowns, err := h.valuationService.ListBreakdowns(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("Failed to list breakdowns", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list breakdowns")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"breakdowns": breakdowns,
		"count":      len(breakdowns),
	})
}
