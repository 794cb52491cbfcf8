package labels

import (
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// Match computes, for each selected label, the records that have at least one
// finding whose message equals the label name. Matching is exact and
// case-sensitive. Every selected label yields an assignment, in input order,
// with record ids in group scan order.
func Match(selected []models.Label, groups []*models.RecordValidationGroup) []models.LabelAssignment {
	out := make([]models.LabelAssignment, 0, len(selected))
	for _, label := range selected {
		ids := make([]int64, 0)
		for _, g := range groups {
			if hasMessage(g, label.Name) {
				ids = append(ids, g.RecordID)
			}
		}
		out = append(out, models.LabelAssignment{Label: label, RecordIDs: ids})
	}
	return out
}

func hasMessage(g *models.RecordValidationGroup, message string) bool {
	for _, f := range g.Findings {
		if f.Message == message {
			return true
		}
	}
	return false
}
