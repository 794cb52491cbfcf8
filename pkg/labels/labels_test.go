package labels

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// group builds a record with one finding per message.
func group(id int64, messages ...string) *models.RecordValidationGroup {
	g := &models.RecordValidationGroup{RecordID: id, Visible: true}
	for _, m := range messages {
		g.Findings = append(g.Findings, &models.ValidationFinding{Message: m, Field: "pm_property_id", Visible: true})
	}
	return g
}

func persisted(id int64, name string) models.Label {
	return models.Label{ID: models.LabelID(id), Name: name, Color: "blue", StyleClass: "primary"}
}

// ============================================================================
// Palette
// ============================================================================

func TestPalette_LookupStyleClass(t *testing.T) {
	assert.Equal(t, "success", LookupStyleClass("green"))
	assert.Equal(t, "danger", LookupStyleClass("red"))
	assert.Equal(t, "info", LookupStyleClass("light blue"))
	assert.Equal(t, DefaultStyleClass, LookupStyleClass("magenta"))
}

func TestPalette_ResolveColorFallsBack(t *testing.T) {
	color, err := ResolveColor("orange")
	require.NoError(t, err)
	assert.Equal(t, "orange", color)

	color, err = ResolveColor("magenta")
	assert.Equal(t, DefaultColor, color)
	var cfgErr *apperrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "magenta", cfgErr.Value)
}

func TestPalette_ColorsIsACopy(t *testing.T) {
	colors := Colors()
	require.Len(t, colors, 6)
	colors[0].Color = "changed"
	assert.True(t, IsValidColor("green"))
}

// ============================================================================
// Registry
// ============================================================================

func TestSynthesize_OneEphemeralLabelPerDistinctMessage(t *testing.T) {
	groups := []*models.RecordValidationGroup{
		group(1, "Missing PM ID", "Bad Tax Lot"),
		group(2, "Bad Tax Lot", "Odd Value"),
		group(3, "Missing PM ID"),
	}
	existing := []models.Label{persisted(1, "Missing PM ID")}

	got := Synthesize(Findings(groups), existing)

	require.Len(t, got, 3)
	assert.Equal(t, existing[0], got[0], "existing labels come first, unchanged")
	assert.Equal(t, "Bad Tax Lot", got[1].Name)
	assert.Equal(t, "Odd Value", got[2].Name)
	for _, l := range got[1:] {
		assert.Nil(t, l.ID)
		assert.Equal(t, DefaultColor, l.Color)
		assert.Equal(t, "danger", l.StyleClass)
	}
}

func TestSynthesize_PersistedNamesDisjointFromSynthesized(t *testing.T) {
	existing := []models.Label{persisted(7, "A"), persisted(8, "B")}
	findings := Findings([]*models.RecordValidationGroup{group(1, "A", "C"), group(2, "B", "D", "C")})

	got := Synthesize(findings, existing)

	names := map[string]int{}
	for _, l := range got {
		names[l.Name]++
		if l.Name == "A" || l.Name == "B" {
			assert.NotNil(t, l.ID, "persisted label %q must not be replaced", l.Name)
		}
	}
	for name, n := range names {
		assert.Equal(t, 1, n, "label %q should appear once", name)
	}
	assert.Len(t, got, 4)
}

func TestSynthesize_DoesNotMutateInputs(t *testing.T) {
	existing := []models.Label{persisted(1, "A")}
	_ = Synthesize(Findings([]*models.RecordValidationGroup{group(1, "B")}), existing)
	assert.Len(t, existing, 1)
}

func TestNewTempLabel_Defaults(t *testing.T) {
	l, err := NewTempLabel("", "not-a-color")
	assert.Error(t, err)
	assert.Equal(t, UnnamedLabel, l.Name)
	assert.Equal(t, DefaultColor, l.Color)
	assert.True(t, l.IsEphemeral())
}

func TestRegistry_SelectPreservesRegistryOrder(t *testing.T) {
	reg := NewRegistry([]*models.RecordValidationGroup{group(1, "X", "Y", "Z")}, nil)

	selected, err := reg.Select("Z", "X")
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "X", selected[0].Name)
	assert.Equal(t, "Z", selected[1].Name)

	_, err = reg.Select("missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	l, ok := reg.Lookup("Y")
	assert.True(t, ok)
	assert.True(t, l.IsEphemeral())
}

// ============================================================================
// Matcher
// ============================================================================

func TestMatch_RecordsWithMatchingMessage(t *testing.T) {
	label := persisted(3, "L")
	groups := []*models.RecordValidationGroup{
		group(1, "other"),
		group(2, "L"),
		group(4, "l"),
		group(5, "other", "L", "L"),
	}

	got := Match([]models.Label{label}, groups)

	require.Len(t, got, 1)
	assert.Equal(t, label, got[0].Label)
	assert.Equal(t, []int64{2, 5}, got[0].RecordIDs, "exact, case-sensitive, one entry per record")
}

func TestMatch_EmptyAssignmentStillProduced(t *testing.T) {
	got := Match([]models.Label{persisted(1, "A"), persisted(2, "B")}, []*models.RecordValidationGroup{group(1, "A")})
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Label.Name)
	assert.Equal(t, "B", got[1].Label.Name)
	assert.NotNil(t, got[1].RecordIDs)
	assert.Empty(t, got[1].RecordIDs)
}

func TestMatch_Monotonic(t *testing.T) {
	label := persisted(1, "M")
	g := group(9, "other")
	groups := []*models.RecordValidationGroup{g}

	assert.Empty(t, Match([]models.Label{label}, groups)[0].RecordIDs)

	g.Findings = append(g.Findings, &models.ValidationFinding{Message: "M"})
	assert.Equal(t, []int64{9}, Match([]models.Label{label}, groups)[0].RecordIDs)

	g.Findings = g.Findings[:1]
	assert.Empty(t, Match([]models.Label{label}, groups)[0].RecordIDs)
}

// ============================================================================
// Builder
// ============================================================================

func TestBuild_PersistedLabelScenario(t *testing.T) {
	labelsIn := []models.Label{persisted(1, "Missing PM ID")}
	groups := []*models.RecordValidationGroup{group(2, "Missing PM ID"), group(5, "Bad Tax Lot")}

	req, err := Build(Match(labelsIn, groups))
	require.NoError(t, err)

	data, err := json.Marshal(req.Updates)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"label_id":1,"building_ids":[2]}]`, string(data))
}

func TestBuild_EphemeralLabelWithNoMatches(t *testing.T) {
	odd := models.Label{Name: "Odd Value", Color: "red"}

	req, err := Build(Match([]models.Label{odd}, []*models.RecordValidationGroup{group(1, "x")}))
	require.NoError(t, err)

	data, err := json.Marshal(req.Updates)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"label_id":null,"label_name":"Odd Value","label_color":"red","label_style_class":"danger","building_ids":[]}]`, string(data))
}

func TestBuild_IsPure(t *testing.T) {
	assignments := []models.LabelAssignment{
		{Label: persisted(1, "A"), RecordIDs: []int64{3, 1}},
		{Label: models.Label{Name: "B", Color: "green"}, RecordIDs: []int64{2}},
	}

	first, err := Build(assignments)
	require.NoError(t, err)
	second, err := Build(assignments)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	first.Updates[0].BuildingIDs[0] = 99
	assert.Equal(t, int64(3), assignments[0].RecordIDs[0], "request must not alias assignment ids")
}

func TestBuild_RejectsMalformedEphemeralLabels(t *testing.T) {
	tests := []struct {
		name  string
		label models.Label
		field string
	}{
		{name: "empty name", label: models.Label{Name: "  ", Color: "red"}, field: "label_name"},
		{name: "unknown color", label: models.Label{Name: "X", Color: "magenta"}, field: "label_color"},
		{name: "missing color", label: models.Label{Name: "X"}, field: "label_color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build([]models.LabelAssignment{{Label: tt.label}})
			var ve *apperrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	assert.Error(t, ValidateRequest(nil))
	assert.NoError(t, ValidateRequest(&models.BulkUpdateRequest{}))
	assert.Error(t, ValidateRequest(&models.BulkUpdateRequest{Updates: []models.BulkUpdateItem{{LabelID: models.LabelID(0)}}}))
	assert.NoError(t, ValidateRequest(&models.BulkUpdateRequest{Updates: []models.BulkUpdateItem{
		{LabelID: models.LabelID(4), BuildingIDs: []int64{1}},
		{LabelName: "New", LabelColor: "gray", BuildingIDs: []int64{}},
	}}))
	assert.True(t, apperrors.IsValidation(ValidateRequest(&models.BulkUpdateRequest{Updates: []models.BulkUpdateItem{{LabelName: "New"}}})))
}
