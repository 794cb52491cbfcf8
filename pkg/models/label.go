package models

import (
	"time"
)

// Label is a user-assignable tag. A nil ID marks an ephemeral label that only
// exists in the current session and must be created by the server on apply.
type Label struct {
	ID         *int64 `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	StyleClass string `json:"label"`
	IsApplied  bool   `json:"is_applied"`

	OrganizationID int64     `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

// IsEphemeral reports whether the label still needs to be created server-side.
func (l Label) IsEphemeral() bool {
	return l.ID == nil
}

// LabelID returns a pointer to a copy of id, for building persisted labels.
func LabelID(id int64) *int64 {
	return &id
}

// LabelAssignment pairs a selected label with the records whose findings
// match its name.
type LabelAssignment struct {
	Label     Label   `json:"label"`
	RecordIDs []int64 `json:"record_ids"`
}

// BulkUpdateItem applies one label to a set of buildings. Persisted labels
// carry only LabelID; ephemeral labels carry a nil LabelID and the attributes
// the server needs to create them.
type BulkUpdateItem struct {
	LabelID         *int64  `json:"label_id"`
	LabelName       string  `json:"label_name,omitempty"`
	LabelColor      string  `json:"label_color,omitempty"`
	LabelStyleClass string  `json:"label_style_class,omitempty"`
	BuildingIDs     []int64 `json:"building_ids"`
}

// BulkUpdateRequest is sent to the server in a single call.
type BulkUpdateRequest struct {
	Updates []BulkUpdateItem `json:"bulk_update_labels_data"`
}

// LabelIDs returns the ids of the persisted labels in the request, in order.
func (r *BulkUpdateRequest) LabelIDs() []int64 {
	ids := make([]int64, 0, len(r.Updates))
	for _, u := range r.Updates {
		if u.LabelID != nil {
			ids = append(ids, *u.LabelID)
		}
	}
	return ids
}

// ServerLabelState is the server's answer to a successful bulk update.
type ServerLabelState struct {
	Labels           []Label `json:"labels"`
	BuildingsUpdated int     `json:"buildings_updated"`
}

// ColorOption is one entry of the label color palette.
type ColorOption struct {
	StyleClass string `json:"label"`
	Color      string `json:"color"`
}

// ViewState is the persisted part of the cleansing results grid.
type ViewState struct {
	SortColumn     string            `json:"sort_column,omitempty"`
	SortDescending bool              `json:"sort_descending"`
	FilterParams   map[string]string `json:"filter_params"`
	PageSize       int               `json:"page_size"`
}

// BuildingLabelsUpdate adds and removes persisted labels on a set of buildings.
type BuildingLabelsUpdate struct {
	BuildingIDs    []int64 `json:"building_ids"`
	AddLabelIDs    []int64 `json:"add_label_ids"`
	RemoveLabelIDs []int64 `json:"remove_label_ids"`
}

// CreateLabelRequest creates a persisted label.
type CreateLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}
