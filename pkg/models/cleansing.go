package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ekaya-inc/cleansing-engine/pkg/jsonutil"
)

// ============================================================================
// Cleansing Findings
// ============================================================================

// Severity classifies a cleansing finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationFinding is one detected data-quality issue on one imported record.
// Only Visible changes after the import pipeline produces it.
type ValidationFinding struct {
	Message  string   `json:"message"`
	Field    string   `json:"field"`
	Severity Severity `json:"severity,omitempty"`

	// Visible is recomputed on every filter pass.
	Visible bool `json:"visible"`
}

// Reserved keys of the cached cleansing row format. Every other key is a
// display attribute of the record.
const (
	recordIDKey = "id"
	findingsKey = "cleansing_results"
	visibleKey  = "visible"
)

// RecordValidationGroup holds all findings for one imported record plus the
// record's display attributes (address_line_1, pm_property_id, ...).
type RecordValidationGroup struct {
	RecordID   int64
	Findings   []*ValidationFinding
	Attributes map[string]json.RawMessage

	// Visible is recomputed on every filter pass.
	Visible bool
}

// Attribute returns the display value of a record attribute. The second return
// is false when the attribute is missing or null.
func (g *RecordValidationGroup) Attribute(name string) (string, bool) {
	if g.Attributes == nil {
		return "", false
	}
	return jsonutil.FlexibleString(g.Attributes[name])
}

// Clone returns a deep copy so callers can hold a snapshot that later filter
// passes or reloads will not touch.
func (g *RecordValidationGroup) Clone() *RecordValidationGroup {
	c := &RecordValidationGroup{
		RecordID: g.RecordID,
		Visible:  g.Visible,
		Findings: make([]*ValidationFinding, len(g.Findings)),
	}
	for i, f := range g.Findings {
		fc := *f
		c.Findings[i] = &fc
	}
	if g.Attributes != nil {
		c.Attributes = make(map[string]json.RawMessage, len(g.Attributes))
		for k, v := range g.Attributes {
			c.Attributes[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// CloneGroups deep-copies a result set.
func CloneGroups(groups []*RecordValidationGroup) []*RecordValidationGroup {
	out := make([]*RecordValidationGroup, len(groups))
	for i, g := range groups {
		out[i] = g.Clone()
	}
	return out
}

// UnmarshalJSON reads the flat cache format:
// {"id": 2, "address_line_1": "...", "cleansing_results": [...]}
func (g *RecordValidationGroup) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	idRaw, ok := raw[recordIDKey]
	if !ok {
		return fmt.Errorf("cleansing row is missing %q", recordIDKey)
	}
	var id int64
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return fmt.Errorf("invalid record id %s: %w", string(idRaw), err)
	}

	var findings []*ValidationFinding
	if fr, ok := raw[findingsKey]; ok && string(fr) != "null" {
		if err := json.Unmarshal(fr, &findings); err != nil {
			return fmt.Errorf("invalid findings for record %d: %w", id, err)
		}
	}
	for i, f := range findings {
		if f == nil {
			return fmt.Errorf("record %d: finding %d is null", id, i)
		}
	}

	delete(raw, recordIDKey)
	delete(raw, findingsKey)
	delete(raw, visibleKey)

	g.RecordID = id
	g.Findings = findings
	g.Attributes = raw
	g.Visible = true
	for _, f := range g.Findings {
		f.Visible = true
	}
	return nil
}

// MarshalJSON writes the same flat format UnmarshalJSON reads.
func (g RecordValidationGroup) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Attributes)+3)
	for k, v := range g.Attributes {
		out[k] = v
	}
	findings := g.Findings
	if findings == nil {
		findings = []*ValidationFinding{}
	}
	out[recordIDKey] = g.RecordID
	out[findingsKey] = findings
	out[visibleKey] = g.Visible
	return json.Marshal(out)
}

// ============================================================================
// Import Files
// ============================================================================

// ImportFile is the uploaded file a cleansing run was produced for.
type ImportFile struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// CleansingResults is everything the label workflow needs for one import file:
// the findings grouped by record and the persisted labels whose names match
// error messages in those findings.
type CleansingResults struct {
	ImportFile *ImportFile               `json:"import_file"`
	Results    []*RecordValidationGroup `json:"cleansing_results"`
	Labels     []Label                  `json:"labels"`
}
