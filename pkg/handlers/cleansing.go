package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/services"
)

// ProgressResponse is returned by GET /api/cleansing/progress.
type ProgressResponse struct {
	ImportFileID int64 `json:"import_file_id"`
	Progress     int   `json:"progress"`
}

// CleansingHandler serves cleansing results of an import file.
type CleansingHandler struct {
	cleansingService services.CleansingService
	logger           *zap.Logger
}

// NewCleansingHandler creates a new cleansing handler.
func NewCleansingHandler(cleansingService services.CleansingService, logger *zap.Logger) *CleansingHandler {
	return &CleansingHandler{
		cleansingService: cleansingService,
		logger:           logger,
	}
}

// RegisterRoutes registers the cleansing handler's routes on the given mux.
func (h *CleansingHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/cleansing/results", tenantMiddleware(h.Results))
	mux.HandleFunc("GET /api/cleansing/progress", tenantMiddleware(h.Progress))
	mux.HandleFunc("GET /api/cleansing/csv", tenantMiddleware(h.CSV))
}

// Results handles GET /api/cleansing/results?organization_id=N&import_file_id=M
// Returns the findings grouped by record and the labels named after error messages.
func (h *CleansingHandler) Results(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}
	importFileID, ok := ParseImportFileID(w, r, h.logger)
	if !ok {
		return
	}

	results, err := h.cleansingService.GetResults(r.Context(), organizationID, importFileID)
	if err != nil {
		writeServiceError(w, err, "results_failed", "Failed to load cleansing results", h.logger.With(
			zap.Int64("organization_id", organizationID),
			zap.Int64("import_file_id", importFileID)))
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Message: "Cleansing complete",
		Data:    results,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Progress handles GET /api/cleansing/progress?organization_id=N&import_file_id=M
func (h *CleansingHandler) Progress(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}
	importFileID, ok := ParseImportFileID(w, r, h.logger)
	if !ok {
		return
	}

	progress, err := h.cleansingService.GetProgress(r.Context(), organizationID, importFileID)
	if err != nil {
		writeServiceError(w, err, "progress_failed", "Failed to load cleansing progress", h.logger)
		return
	}

	writeSuccess(w, http.StatusOK, ProgressResponse{ImportFileID: importFileID, Progress: progress}, h.logger)
}

// CSV handles GET /api/cleansing/csv?organization_id=N&import_file_id=M
// The export is buffered so a failure can still be reported as JSON.
func (h *CleansingHandler) CSV(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := ParseOrganizationID(w, r, h.logger)
	if !ok {
		return
	}
	importFileID, ok := ParseImportFileID(w, r, h.logger)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.cleansingService.ExportCSV(r.Context(), organizationID, importFileID, &buf); err != nil {
		writeServiceError(w, err, "export_failed", "Failed to export cleansing results", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", services.CSVFilename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("Failed to write csv export", zap.Error(err))
	}
}
