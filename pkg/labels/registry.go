package labels

import (
	"fmt"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// UnnamedLabel is used when a temporary label is requested without a name.
const UnnamedLabel = "Unnamed"

// Findings flattens the findings of all groups in scan order.
func Findings(groups []*models.RecordValidationGroup) []*models.ValidationFinding {
	var out []*models.ValidationFinding
	for _, g := range groups {
		out = append(out, g.Findings...)
	}
	return out
}

// UniqueMessages returns the distinct finding messages in order of first occurrence.
func UniqueMessages(findings []*models.ValidationFinding) []string {
	seen := make(map[string]struct{}, len(findings))
	var out []string
	for _, f := range findings {
		if _, ok := seen[f.Message]; ok {
			continue
		}
		seen[f.Message] = struct{}{}
		out = append(out, f.Message)
	}
	return out
}

// NewTempLabel builds an ephemeral label. An empty name becomes UnnamedLabel
// and an invalid color becomes DefaultColor; the returned error is the
// ConfigurationError for the color substitution, if any, and is informational.
func NewTempLabel(name, color string) (models.Label, error) {
	if name == "" {
		name = UnnamedLabel
	}
	resolved, err := ResolveColor(color)
	return models.Label{
		Name:       name,
		Color:      resolved,
		StyleClass: LookupStyleClass(resolved),
	}, err
}

// Synthesize returns existing followed by one ephemeral label for every
// distinct message that has no existing label of exactly that name.
// Neither input is modified.
func Synthesize(findings []*models.ValidationFinding, existing []models.Label) []models.Label {
	known := make(map[string]struct{}, len(existing))
	out := make([]models.Label, 0, len(existing))
	for _, l := range existing {
		known[l.Name] = struct{}{}
		out = append(out, l)
	}

	for _, msg := range UniqueMessages(findings) {
		if _, ok := known[msg]; ok {
			continue
		}
		// DefaultColor is always valid, so no error to report here.
		temp, _ := NewTempLabel(msg, DefaultColor)
		// The name is the correlation key, even when the message is empty.
		temp.Name = msg
		out = append(out, temp)
	}
	return out
}

// Registry owns the full label set for one cleansing session.
type Registry struct {
	labels []models.Label
	byName map[string]int
}

// NewRegistry synthesizes the session label set from the result groups and
// the persisted labels returned alongside them.
func NewRegistry(groups []*models.RecordValidationGroup, existing []models.Label) *Registry {
	all := Synthesize(Findings(groups), existing)
	byName := make(map[string]int, len(all))
	for i, l := range all {
		if _, ok := byName[l.Name]; !ok {
			byName[l.Name] = i
		}
	}
	return &Registry{labels: all, byName: byName}
}

// Labels returns a copy of the label set.
func (r *Registry) Labels() []models.Label {
	out := make([]models.Label, len(r.labels))
	copy(out, r.labels)
	return out
}

// Lookup finds a label by exact name.
func (r *Registry) Lookup(name string) (models.Label, bool) {
	i, ok := r.byName[name]
	if !ok {
		return models.Label{}, false
	}
	return r.labels[i], true
}

// Select returns the labels with the given names in registry order.
func (r *Registry) Select(names ...string) ([]models.Label, error) {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := r.byName[n]; !ok {
			return nil, fmt.Errorf("label %q: %w", n, apperrors.ErrNotFound)
		}
		want[n] = struct{}{}
	}

	var out []models.Label
	for _, l := range r.labels {
		if _, ok := want[l.Name]; ok {
			out = append(out, l)
			delete(want, l.Name)
		}
	}
	return out, nil
}
