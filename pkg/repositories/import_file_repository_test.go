//go:build integration

package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/testhelpers"
)

func TestImportFileRepository_CreateAndGet(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	org := testhelpers.NewOrganization(t, db.DB)
	repo := NewImportFileRepository()

	file := &models.ImportFile{OrganizationID: org.ID, Name: "portfolio-2024.csv"}
	require.NoError(t, repo.Create(org.Ctx, file))
	require.NotZero(t, file.ID)
	assert.False(t, file.UploadedAt.IsZero())

	got, err := repo.GetByID(org.Ctx, org.ID, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "portfolio-2024.csv", got.Name)
	assert.Equal(t, org.ID, got.OrganizationID)
}

func TestImportFileRepository_GetByID_OtherOrganization(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	owner := testhelpers.NewOrganization(t, db.DB)
	other := testhelpers.NewOrganization(t, db.DB)
	repo := NewImportFileRepository()

	file := &models.ImportFile{OrganizationID: owner.ID, Name: "owned.csv"}
	require.NoError(t, repo.Create(owner.Ctx, file))

	_, err := repo.GetByID(other.Ctx, other.ID, file.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = repo.GetByID(owner.Ctx, owner.ID, file.ID+1000)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
