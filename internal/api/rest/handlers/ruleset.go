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

// RulesetHandler handles ruleset HTTP requests
type RulesetHandler struct {
	logger         *logger.Logger
	rulesetService *services.RulesetService
}

// NewRulesetHandler creates a new ruleset handler
func NewRulesetHandler(log *logger.Logger, rulesetService *services.RulesetService) *RulesetHandler {
	return &RulesetHandler{
		logger:         log,
		rulesetService: rulesetService,
	}
}

// Create creates a new ruleset
func (h *RulesetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ruleset, err := h.rulesetService.Create(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to create ruleset", logger.Err(err))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, ruleset)
}

// Get retrieves a ruleset by ID
func (h *RulesetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ruleset ID")
		return
	}

	ruleset, err := h.rulesetService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Ruleset not found")
			return
		}
		h.logger.Error("Failed to get ruleset", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to get ruleset")
		return
	}

	respondJSON(w, http.StatusOK, ruleset)
}

// List retrieves all rulesets
func (h *RulesetHandler) List(w http.ResponseWriter, r *http.Request) {
	rulesets, err := h.rulesetService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list rulesets", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list rulesets")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rulesets": rulesets,
		"count":    len(rulesets),
	})
}

// Update applies a partial update to a ruleset
func (h *RulesetHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ruleset ID")
		return
	}

	var req models.UpdateRulesetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ruleset, err := h.rulesetService.Update(r.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrNotFound):
			respondError(w, http.StatusNotFound, "Ruleset not found")
		case errors.Is(err, services.ErrForeignKeyRuleEdit):
			respondError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("Failed to update ruleset", logger.Err(err))
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, ruleset)
}

// Recalculate schedules re-evaluation of the listings the ruleset covers
func (h *RulesetHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ruleset ID")
		return
	}

	if err := h.rulesetService.Recalculate(r.Context(), id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Ruleset not found")
			return
		}
		h.logger.Error("Failed to schedule ruleset recalculation", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to schedule recalculation")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// Delete removes a ruleset
func (h *RulesetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ruleset ID")
		return
	}

	if err := h.rulesetService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Ruleset not found")
			return
		}
		h.logger.Error("Failed to delete ruleset", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete ruleset")
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}
