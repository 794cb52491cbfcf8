//go:build integration

package repositories

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/testhelpers"
)

// labelTestContext holds all dependencies for label repository integration tests.
type labelTestContext struct {
	t    *testing.T
	db   *testhelpers.TestDB
	org  *testhelpers.Organization
	repo LabelRepository
}

func setupLabelTest(t *testing.T) *labelTestContext {
	t.Helper()
	db := testhelpers.GetTestDB(t)
	return &labelTestContext{
		t:    t,
		db:   db,
		org:  testhelpers.NewOrganization(t, db.DB),
		repo: NewLabelRepository(),
	}
}

func (tc *labelTestContext) createLabel(name, color string) models.Label {
	tc.t.Helper()
	l := models.Label{OrganizationID: tc.org.ID, Name: name, Color: color}
	require.NoError(tc.t, tc.repo.Create(tc.org.Ctx, &l))
	return l
}

func TestLabelRepository_CreateAndList(t *testing.T) {
	tc := setupLabelTest(t)

	created := tc.createLabel("Missing PM ID", "blue")
	require.NotNil(t, created.ID)
	assert.Equal(t, "primary", created.StyleClass)

	dup := models.Label{OrganizationID: tc.org.ID, Name: "Missing PM ID", Color: "red"}
	assert.ErrorIs(t, tc.repo.Create(tc.org.Ctx, &dup), apperrors.ErrConflict)

	all, err := tc.repo.List(tc.org.Ctx, tc.org.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Missing PM ID", all[0].Name)

	byName, err := tc.repo.ListByNames(tc.org.Ctx, tc.org.ID, []string{"Missing PM ID", "Unknown"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)
}

func TestLabelRepository_Delete(t *testing.T) {
	tc := setupLabelTest(t)
	l := tc.createLabel("Obsolete", "gray")

	require.NoError(t, tc.repo.Delete(tc.org.Ctx, tc.org.ID, *l.ID))
	assert.ErrorIs(t, tc.repo.Delete(tc.org.Ctx, tc.org.ID, *l.ID), apperrors.ErrNotFound)
}

func TestLabelRepository_ApplyBulkUpdate(t *testing.T) {
	tc := setupLabelTest(t)
	existing := tc.createLabel("Missing PM ID", "blue")
	b1 := testhelpers.InsertBuilding(t, tc.db.DB, tc.org.ID, "1 Main St")
	b2 := testhelpers.InsertBuilding(t, tc.db.DB, tc.org.ID, "2 Main St")

	req := &models.BulkUpdateRequest{Updates: []models.BulkUpdateItem{
		{LabelID: existing.ID, BuildingIDs: []int64{b1, b2}},
		{LabelName: "Bad Tax Lot", LabelColor: "red", LabelStyleClass: "danger", BuildingIDs: []int64{b2}},
		{LabelName: "Nothing Matched", LabelColor: "orange", LabelStyleClass: "warning", BuildingIDs: []int64{}},
	}}

	state, err := tc.repo.ApplyBulkUpdate(tc.org.Ctx, tc.org.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 2, state.BuildingsUpdated)
	require.Len(t, state.Labels, 3)
	assert.Equal(t, *existing.ID, *state.Labels[0].ID)
	assert.True(t, state.Labels[0].IsApplied)
	assert.Equal(t, "Bad Tax Lot", state.Labels[1].Name)
	assert.Equal(t, "danger", state.Labels[1].StyleClass)
	assert.False(t, state.Labels[2].IsApplied, "a label with no buildings is created but not applied")

	applied, err := tc.repo.AppliedLabelIDs(tc.org.Ctx, tc.org.ID, []int64{b1})
	require.NoError(t, err)
	assert.True(t, applied[*existing.ID])
	assert.False(t, applied[*state.Labels[1].ID])

	// Re-applying is idempotent and reuses the label created above.
	again, err := tc.repo.ApplyBulkUpdate(tc.org.Ctx, tc.org.ID, req)
	require.NoError(t, err)
	assert.Equal(t, *state.Labels[1].ID, *again.Labels[1].ID)

	all, err := tc.repo.List(tc.org.Ctx, tc.org.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLabelRepository_ApplyBulkUpdate_RejectsForeignIDs(t *testing.T) {
	tc := setupLabelTest(t)
	other := testhelpers.NewOrganization(t, tc.db.DB)
	foreignBuilding := testhelpers.InsertBuilding(t, tc.db.DB, other.ID, "9 Elsewhere")
	ownBuilding := testhelpers.InsertBuilding(t, tc.db.DB, tc.org.ID, "1 Main St")

	_, err := tc.repo.ApplyBulkUpdate(tc.org.Ctx, tc.org.ID, &models.BulkUpdateRequest{
		Updates: []models.BulkUpdateItem{{LabelName: "X", LabelColor: "red", BuildingIDs: []int64{ownBuilding, foreignBuilding}}},
	})
	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "building_ids", ve.Field)

	_, err = tc.repo.ApplyBulkUpdate(tc.org.Ctx, tc.org.ID, &models.BulkUpdateRequest{
		Updates: []models.BulkUpdateItem{{LabelID: models.LabelID(999999), BuildingIDs: []int64{ownBuilding}}},
	})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "label_id", ve.Field)

	labels, err := tc.repo.List(tc.org.Ctx, tc.org.ID)
	require.NoError(t, err)
	assert.Empty(t, labels, "failed requests roll back label creation")
}

func TestLabelRepository_UpdateBuildingLabels(t *testing.T) {
	tc := setupLabelTest(t)
	a := tc.createLabel("A", "green")
	b := tc.createLabel("B", "blue")
	building := testhelpers.InsertBuilding(t, tc.db.DB, tc.org.ID, "1 Main St")

	require.NoError(t, tc.repo.UpdateBuildingLabels(tc.org.Ctx, tc.org.ID, &models.BuildingLabelsUpdate{
		BuildingIDs: []int64{building},
		AddLabelIDs: []int64{*a.ID, *b.ID},
	}))
	require.NoError(t, tc.repo.UpdateBuildingLabels(tc.org.Ctx, tc.org.ID, &models.BuildingLabelsUpdate{
		BuildingIDs:    []int64{building},
		RemoveLabelIDs: []int64{*a.ID},
	}))

	applied, err := tc.repo.AppliedLabelIDs(tc.org.Ctx, tc.org.ID, []int64{building})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{*b.ID: true}, applied)
}

func TestImportFileRepository(t *testing.T) {
	tc := setupLabelTest(t)
	repo := NewImportFileRepository()

	f := &models.ImportFile{OrganizationID: tc.org.ID, Name: "buildings.csv"}
	require.NoError(t, repo.Create(tc.org.Ctx, f))

	got, err := repo.GetByID(tc.org.Ctx, tc.org.ID, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "buildings.csv", got.Name)

	_, err = repo.GetByID(tc.org.Ctx, tc.org.ID+1000000, f.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
