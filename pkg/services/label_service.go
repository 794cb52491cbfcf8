package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/audit"
	"github.com/ekaya-inc/cleansing-engine/pkg/labels"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/repositories"
	"github.com/ekaya-inc/cleansing-engine/pkg/retry"
)

// LabelService defines the interface for label operations.
type LabelService interface {
	// List returns the organization's labels. When buildingIDs is not empty,
	// IsApplied is set on labels attached to any of those buildings.
	List(ctx context.Context, organizationID int64, buildingIDs []int64) ([]models.Label, error)
	Colors() []models.ColorOption
	Create(ctx context.Context, organizationID int64, req *models.CreateLabelRequest) (*models.Label, error)
	Delete(ctx context.Context, organizationID, labelID int64) error

	// BulkUpdate validates and applies a bulk update atomically.
	BulkUpdate(ctx context.Context, organizationID int64, req *models.BulkUpdateRequest) (*models.ServerLabelState, error)
	UpdateBuildingLabels(ctx context.Context, organizationID int64, update *models.BuildingLabelsUpdate) error
}

type labelService struct {
	labelRepo repositories.LabelRepository
	retryCfg  *retry.Config
	auditor   *audit.LabelAuditor
	logger    *zap.Logger
}

// NewLabelService creates a new label service. A nil retryCfg uses
// retry.DefaultConfig; a nil auditor skips the audit trail.
func NewLabelService(
	labelRepo repositories.LabelRepository,
	retryCfg *retry.Config,
	auditor *audit.LabelAuditor,
	logger *zap.Logger,
) LabelService {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &labelService{
		labelRepo: labelRepo,
		retryCfg:  retryCfg,
		auditor:   auditor,
		logger:    logger.Named("labels"),
	}
}

var _ LabelService = (*labelService)(nil)

func (s *labelService) List(ctx context.Context, organizationID int64, buildingIDs []int64) ([]models.Label, error) {
	all, err := s.labelRepo.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if len(buildingIDs) == 0 {
		return all, nil
	}

	applied, err := s.labelRepo.AppliedLabelIDs(ctx, organizationID, buildingIDs)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID != nil {
			all[i].IsApplied = applied[*all[i].ID]
		}
	}
	return all, nil
}

func (s *labelService) Colors() []models.ColorOption {
	return labels.Colors()
}

func (s *labelService) Create(ctx context.Context, organizationID int64, req *models.CreateLabelRequest) (*models.Label, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name", "is required")
	}
	if !labels.IsValidColor(req.Color) {
		return nil, apperrors.NewValidationError("color", "%q is not a supported color", req.Color)
	}

	label := &models.Label{
		Name:           name,
		Color:          req.Color,
		StyleClass:     labels.LookupStyleClass(req.Color),
		OrganizationID: organizationID,
	}
	if err := s.labelRepo.Create(ctx, label); err != nil {
		return nil, err
	}

	s.logger.Info("Created label",
		zap.Int64("organization_id", organizationID),
		zap.Int64p("label_id", label.ID),
		zap.String("name", label.Name))
	if label.ID != nil {
		s.auditor.LabelCreated(ctx, organizationID, *label.ID, label.Name, label.Color)
	}
	return label, nil
}

func (s *labelService) Delete(ctx context.Context, organizationID, labelID int64) error {
	if err := s.labelRepo.Delete(ctx, organizationID, labelID); err != nil {
		return err
	}
	s.logger.Info("Deleted label",
		zap.Int64("organization_id", organizationID),
		zap.Int64("label_id", labelID))
	s.auditor.LabelDeleted(ctx, organizationID, labelID)
	return nil
}

func (s *labelService) BulkUpdate(ctx context.Context, organizationID int64, req *models.BulkUpdateRequest) (*models.ServerLabelState, error) {
	if err := labels.ValidateRequest(req); err != nil {
		return nil, err
	}

	// Serialization failures between concurrent bulk updates are retried;
	// the transaction is all-or-nothing so a retry never double-applies.
	var state *models.ServerLabelState
	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		var err error
		state, err = s.labelRepo.ApplyBulkUpdate(ctx, organizationID, req)
		return err
	})
	if err != nil {
		if !apperrors.IsValidation(err) {
			s.logger.Error("Bulk label update failed",
				zap.Int64("organization_id", organizationID),
				zap.Int("updates", len(req.Updates)),
				zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Applied bulk label update",
		zap.Int64("organization_id", organizationID),
		zap.Int("updates", len(req.Updates)),
		zap.Int("buildings_updated", state.BuildingsUpdated))
	s.auditor.BulkApplied(ctx, organizationID, audit.BulkApplyDetails{
		Updates:          len(req.Updates),
		CreatedLabels:    createdLabelNames(req),
		BuildingsUpdated: state.BuildingsUpdated,
	})
	return state, nil
}

func (s *labelService) UpdateBuildingLabels(ctx context.Context, organizationID int64, update *models.BuildingLabelsUpdate) error {
	if update == nil || len(update.BuildingIDs) == 0 {
		return apperrors.NewValidationError("building_ids", "at least one building is required")
	}
	for _, id := range update.AddLabelIDs {
		for _, rm := range update.RemoveLabelIDs {
			if id == rm {
				return apperrors.NewValidationError("add_label_ids", "label %d is both added and removed", id)
			}
		}
	}

	err := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		return s.labelRepo.UpdateBuildingLabels(ctx, organizationID, update)
	})
	if err != nil {
		return fmt.Errorf("failed to update building labels: %w", err)
	}
	s.auditor.BuildingLabelsUpdated(ctx, organizationID, audit.BuildingLabelsDetails{
		BuildingIDs:    update.BuildingIDs,
		AddLabelIDs:    update.AddLabelIDs,
		RemoveLabelIDs: update.RemoveLabelIDs,
	})
	return nil
}

// createdLabelNames lists the labels a bulk update creates by name.
func createdLabelNames(req *models.BulkUpdateRequest) []string {
	var names []string
	for _, item := range req.Updates {
		if item.LabelID == nil {
			names = append(names, item.LabelName)
		}
	}
	return names
}
