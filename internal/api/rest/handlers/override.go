package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/internal/repository/postgres"
	"github.com/dealscope/valuation-engine/internal/services"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/validator"
)

// OverrideHandler handles valuation override HTTP requests
type OverrideHandler struct {
	logger           *logger.Logger
	valuationService *services.ValuationService
}

// NewOverrideHandler creates a new override handler
func NewOverrideHandler(log *logger.Logger, valuationService *services.ValuationService) *OverrideHandler {
	return &OverrideHandler{
		logger:           log,
		valuationService: valuationService,
	}
}

// Upsert creates or replaces an override for a listing
func (h *OverrideHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	var req models.UpsertOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	override, err := h.valuationService.UpsertOverride(r.Context(), listingID, &req)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("Failed to upsert override", logger.Err(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, override)
}

// List returns the overrides in effect for a listing
func (h *OverrideHandler) List(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	overrides, err := h.valuationService.ListOverrides(r.Context(), listingID)
	if err != nil {
		h.logger.Error("Failed to list overrides", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list overrides")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// Delete removes an override, restoring automatic evaluation
func (h *OverrideHandler) Delete(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	overrideID, err := uuid.Parse(chi.URLParam(r, "overrideID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid override ID")
		return
	}

	if err := h.valuationService.DeleteOverride(r.Context(), listingID, overrideID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Override not found")
			return
		}
		h.logger.Error("Failed to delete override", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete override")
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}
