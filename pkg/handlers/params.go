package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/database"
)

// ParseOrganizationID reads the organization_id query parameter.
// Returns false after writing an error response.
func ParseOrganizationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	id, ok := database.ParseOrganizationID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_organization_id", "organization_id must be a positive integer", logger)
		return 0, false
	}
	return id, true
}

// ParseImportFileID reads the import_file_id query parameter.
// Returns false after writing an error response.
func ParseImportFileID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("import_file_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_import_file_id", "import_file_id must be a positive integer", logger)
		return 0, false
	}
	return id, true
}

// ParseLabelID extracts the label ID from the request path.
// Expects path parameter: id
func ParseLabelID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_label_id", "Invalid label ID format", logger)
		return 0, false
	}
	return id, true
}

// parseIDList reads a list of ids given either as repeated parameters
// (?building_ids=1&building_ids=2) or comma separated (?building_ids=1,2).
func parseIDList(r *http.Request, name string) ([]int64, bool) {
	var ids []int64
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, false
			}
			ids = append(ids, id)
		}
	}
	return ids, true
}
