// Package audit writes label changes as structured events so they can be
// shipped to a log pipeline and queried per organization.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// EventType categorizes label change events.
type EventType string

const (
	EventLabelCreated          EventType = "label_created"
	EventLabelDeleted          EventType = "label_deleted"
	EventLabelsBulkApplied     EventType = "labels_bulk_applied"
	EventBuildingLabelsUpdated EventType = "building_labels_updated"
)

// Event is one auditable label change.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	EventType      EventType `json:"event_type"`
	OrganizationID int64     `json:"organization_id"`
	RequestID      string    `json:"request_id,omitempty"`
	Details        any       `json:"details"`
}

// BulkApplyDetails summarizes an applied bulk update.
type BulkApplyDetails struct {
	Updates          int      `json:"updates"`
	CreatedLabels    []string `json:"created_labels,omitempty"`
	BuildingsUpdated int      `json:"buildings_updated"`
}

// BuildingLabelsDetails describes a manual add/remove on a set of buildings.
type BuildingLabelsDetails struct {
	BuildingIDs    []int64 `json:"building_ids"`
	AddLabelIDs    []int64 `json:"add_label_ids,omitempty"`
	RemoveLabelIDs []int64 `json:"remove_label_ids,omitempty"`
}

type requestIDKey struct{}

// WithRequestID stores the HTTP request id for events logged further down.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LabelAuditor logs label changes. A nil *LabelAuditor discards events.
type LabelAuditor struct {
	logger *zap.Logger
}

// NewLabelAuditor creates an auditor logging under the "label_audit" namespace.
func NewLabelAuditor(logger *zap.Logger) *LabelAuditor {
	return &LabelAuditor{logger: logger.Named("label_audit")}
}

// LabelCreated records a label created from the palette.
func (a *LabelAuditor) LabelCreated(ctx context.Context, organizationID, labelID int64, name, color string) {
	a.log(ctx, EventLabelCreated, organizationID, map[string]any{
		"label_id": labelID,
		"name":     name,
		"color":    color,
	})
}

// LabelDeleted records a removed label.
func (a *LabelAuditor) LabelDeleted(ctx context.Context, organizationID, labelID int64) {
	a.log(ctx, EventLabelDeleted, organizationID, map[string]any{"label_id": labelID})
}

// BulkApplied records a committed bulk update.
func (a *LabelAuditor) BulkApplied(ctx context.Context, organizationID int64, details BulkApplyDetails) {
	a.log(ctx, EventLabelsBulkApplied, organizationID, details)
}

// BuildingLabelsUpdated records a manual label change on buildings.
func (a *LabelAuditor) BuildingLabelsUpdated(ctx context.Context, organizationID int64, details BuildingLabelsDetails) {
	a.log(ctx, EventBuildingLabelsUpdated, organizationID, details)
}

func (a *LabelAuditor) log(ctx context.Context, eventType EventType, organizationID int64, details any) {
	if a == nil {
		return
	}
	event := Event{
		Timestamp:      time.Now().UTC(),
		EventType:      eventType,
		OrganizationID: organizationID,
		RequestID:      RequestIDFromContext(ctx),
		Details:        details,
	}

	// Known types only; marshaling cannot fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Label change",
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(eventType)),
		zap.Int64("organization_id", organizationID),
		zap.String("request_id", event.RequestID),
	)
}
