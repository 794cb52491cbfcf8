package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/labels"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// passthroughTenant stands in for database.WithTenantContext.
func passthroughTenant(next http.HandlerFunc) http.HandlerFunc {
	return next
}

// mockCleansingService is a configurable mock for handler tests.
// Each GetResults call decodes rows afresh, like the Redis cache does.
type mockCleansingService struct {
	rows     string
	labels   []models.Label
	progress int
	csv      string
	err      error

	capturedOrganizationID int64
	capturedImportFileID   int64
}

func (m *mockCleansingService) GetResults(_ context.Context, organizationID, importFileID int64) (*models.CleansingResults, error) {
	m.capturedOrganizationID = organizationID
	m.capturedImportFileID = importFileID
	if m.err != nil {
		return nil, m.err
	}
	var groups []*models.RecordValidationGroup
	if err := json.Unmarshal([]byte(m.rows), &groups); err != nil {
		return nil, err
	}
	return &models.CleansingResults{
		ImportFile: &models.ImportFile{ID: importFileID, OrganizationID: organizationID, Name: "buildings.csv", UploadedAt: time.Now()},
		Results:    groups,
		Labels:     m.labels,
	}, nil
}

func (m *mockCleansingService) GetProgress(_ context.Context, _, _ int64) (int, error) {
	return m.progress, m.err
}

func (m *mockCleansingService) ExportCSV(_ context.Context, _, _ int64, w io.Writer) error {
	if m.err != nil {
		return m.err
	}
	_, err := io.WriteString(w, m.csv)
	return err
}

// mockLabelService is a configurable mock for handler tests.
type mockLabelService struct {
	labels []models.Label
	state  *models.ServerLabelState
	err    error

	capturedBuildingIDs []int64
	capturedCreate      *models.CreateLabelRequest
	capturedBulk        *models.BulkUpdateRequest
	capturedUpdate      *models.BuildingLabelsUpdate
	capturedDeleteID    int64
}

func (m *mockLabelService) List(_ context.Context, _ int64, buildingIDs []int64) ([]models.Label, error) {
	m.capturedBuildingIDs = buildingIDs
	return m.labels, m.err
}

func (m *mockLabelService) Colors() []models.ColorOption {
	return labels.Colors()
}

func (m *mockLabelService) Create(_ context.Context, organizationID int64, req *models.CreateLabelRequest) (*models.Label, error) {
	m.capturedCreate = req
	if m.err != nil {
		return nil, m.err
	}
	if !labels.IsValidColor(req.Color) {
		return nil, apperrors.NewValidationError("color", "%q is not a supported color", req.Color)
	}
	return &models.Label{ID: models.LabelID(42), Name: req.Name, Color: req.Color,
		StyleClass: labels.LookupStyleClass(req.Color), OrganizationID: organizationID}, nil
}

func (m *mockLabelService) Delete(_ context.Context, _, labelID int64) error {
	m.capturedDeleteID = labelID
	return m.err
}

func (m *mockLabelService) BulkUpdate(_ context.Context, _ int64, req *models.BulkUpdateRequest) (*models.ServerLabelState, error) {
	m.capturedBulk = req
	if m.err != nil {
		return nil, m.err
	}
	return m.state, nil
}

func (m *mockLabelService) UpdateBuildingLabels(_ context.Context, _ int64, update *models.BuildingLabelsUpdate) error {
	m.capturedUpdate = update
	return m.err
}
