package labels

import (
	"strings"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// Build turns label assignments into a bulk-update request. Ephemeral labels
// are validated here so a malformed payload never reaches the server.
func Build(assignments []models.LabelAssignment) (*models.BulkUpdateRequest, error) {
	req := &models.BulkUpdateRequest{Updates: make([]models.BulkUpdateItem, 0, len(assignments))}

	for _, a := range assignments {
		ids := make([]int64, len(a.RecordIDs))
		copy(ids, a.RecordIDs)

		if a.Label.ID != nil {
			req.Updates = append(req.Updates, models.BulkUpdateItem{
				LabelID:     models.LabelID(*a.Label.ID),
				BuildingIDs: ids,
			})
			continue
		}

		if err := validateEphemeral(a.Label.Name, a.Label.Color); err != nil {
			return nil, err
		}
		req.Updates = append(req.Updates, models.BulkUpdateItem{
			LabelName:       a.Label.Name,
			LabelColor:      a.Label.Color,
			LabelStyleClass: LookupStyleClass(a.Label.Color),
			BuildingIDs:     ids,
		})
	}

	return req, nil
}

// ValidateRequest checks a decoded request before the server applies it.
func ValidateRequest(req *models.BulkUpdateRequest) error {
	if req == nil {
		return apperrors.NewValidationError("bulk_update_labels_data", "must be an array")
	}
	for _, u := range req.Updates {
		if u.LabelID != nil {
			if *u.LabelID <= 0 {
				return apperrors.NewValidationError("label_id", "must be a positive integer or null")
			}
			continue
		}
		if err := validateEphemeral(u.LabelName, u.LabelColor); err != nil {
			return err
		}
	}
	return nil
}

func validateEphemeral(name, color string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewValidationError("label_name", "must be set for a new label")
	}
	if !IsValidColor(color) {
		return apperrors.NewValidationError("label_color", "%q is not a supported color", color)
	}
	return nil
}
