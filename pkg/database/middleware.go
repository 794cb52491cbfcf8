package database

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/logging"
)

// OrganizationIDParam is the query parameter that selects the organization.
const OrganizationIDParam = "organization_id"

// ParseOrganizationID reads the organization_id query parameter. It must be a
// positive integer.
func ParseOrganizationID(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get(OrganizationIDParam)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// WithTenantContext creates middleware that sets up an organization-scoped DB
// connection from the organization_id query parameter.
// The connection is automatically cleaned up after the handler returns.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			organizationID, ok := ParseOrganizationID(r)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_organization_id", "organization_id must be a positive integer")
				return
			}

			scope, err := db.WithTenant(r.Context(), organizationID)
			if err != nil {
				logger.Error("Failed to acquire tenant connection",
					zap.Int64("organization_id", organizationID),
					zap.String("error", logging.SanitizeError(err)))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			ctx := SetTenantScope(r.Context(), scope)
			next(w, r.WithContext(ctx))
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
