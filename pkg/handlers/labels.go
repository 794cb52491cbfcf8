package handlers

import (
	"encoding/json"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/services"
)

// maxBulkUpdateBody caps the size of a bulk update payload.
const maxBulkUpdateBody = 8 << 20

// LabelsHandler handles label-related HTTP requests.
type LabelsHandler struct {
	labelService services.LabelService
	logger       *zap.Logger
}

// NewLabelsHandler creates a new labels handler.
func NewLabelsHandler(labelService services.LabelService, logger *zap.Logger) *LabelsHandler {
	return &LabelsHandler{
		labelService: labelService,
		logger:       logger,
	}
}

// RegisterRoutes registers the labels handler's routes on the given mux.
func (h *LabelsHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	// The palette is static and not organization specific.
	mux.HandleFunc("GET /api/labels/colors", h.Colors)

	mux.HandleFunc("GET /api/labels", tenantMiddleware(h.List))
	mux.HandleFunc("POST /api/labels", tenantMiddleware(h.Create))
	mux.HandleFunc("DELETE /api/labels/{id}", tenantMiddleware(h.Delete))
	mux.HandleFunc("PUT /api/labels/bulk_update", tenantMiddleware(h.BulkUpdate))
	mux.HandleFunc("PUT /api/labels/update_building_labels", tenantMiddleware(h.UpdateBuildingLabels))
}

// List handles GET /api/labels?organization_id=N[&building_ids=1,2]
// With building_ids, each label reports whether it is applied to any of them.
func (h *LabelsHandler) List(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}
	buildingIDs, ok := parseIDList(r, "building_ids")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_building_ids", "building_ids must be positive integers", h.logger)
		return
	}

	list, err := h.labelService.List(r.Context(), organizationID, buildingIDs)
	if err != nil {
		writeServiceError(w, err, "list_failed", "Failed to list labels", h.logger)
		return
	}
	if list == nil {
		list = []models.Label{}
	}
	writeSuccess(w, http.StatusOK, list, h.logger)
}

// Colors handles GET /api/labels/colors
func (h *LabelsHandler) Colors(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.labelService.Colors(), h.logger)
}

// Create handles POST /api/labels?organization_id=N
func (h *LabelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}

	var req models.CreateLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}

	label, err := h.labelService.Create(r.Context(), organizationID, &req)
	if err != nil {
		writeServiceError(w, err, "create_failed", "Failed to create label", h.logger)
		return
	}
	writeSuccess(w, http.StatusCreated, label, h.logger)
}

// Delete handles DELETE /api/labels/{id}?organization_id=N
func (h *LabelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}
	labelID, ok := ParseLabelID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.labelService.Delete(r.Context(), organizationID, labelID); err != nil {
		writeServiceError(w, err, "delete_failed", "Failed to delete label", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkUpdate handles PUT /api/labels/bulk_update?organization_id=N
// Applies every update in one transaction; a malformed or foreign reference
// rejects the whole request with 400 and nothing is changed.
func (h *LabelsHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}

	var req models.BulkUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBulkUpdateBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}
	if req.Updates == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "bulk_update_labels_data must be an array", h.logger)
		return
	}

	state, err := h.labelService.BulkUpdate(r.Context(), organizationID, &req)
	if err != nil {
		writeServiceError(w, err, "bulk_update_failed", "Failed to apply labels", h.logger)
		return
	}
	writeSuccess(w, http.StatusOK, state, h.logger)
}

// UpdateBuildingLabels handles PUT /api/labels/update_building_labels?organization_id=N
func (h *LabelsHandler) UpdateBuildingLabels(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}

	var update models.BuildingLabelsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}

	if err := h.labelService.UpdateBuildingLabels(r.Context(), organizationID, &update); err != nil {
		writeServiceError(w, err, "update_failed", "Failed to update building labels", h.logger)
		return
	}
	// Count distinct buildings, as bulk_update does.
	distinct := slices.Clone(update.BuildingIDs)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	writeSuccess(w, http.StatusOK, map[string]int{"buildings_updated": len(distinct)}, h.logger)
}
