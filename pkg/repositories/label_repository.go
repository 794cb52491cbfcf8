package repositories

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/database"
	"github.com/ekaya-inc/cleansing-engine/pkg/labels"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// LabelRepository defines the interface for label data access.
// All methods read the organization-scoped connection from ctx.
type LabelRepository interface {
	// List returns every label of the organization ordered by name.
	List(ctx context.Context, organizationID int64) ([]models.Label, error)

	// ListByNames returns the labels whose name is in names.
	ListByNames(ctx context.Context, organizationID int64, names []string) ([]models.Label, error)

	// AppliedLabelIDs returns the ids of labels attached to any of buildingIDs.
	AppliedLabelIDs(ctx context.Context, organizationID int64, buildingIDs []int64) (map[int64]bool, error)

	// Create inserts a label. Returns apperrors.ErrConflict if the name is taken.
	Create(ctx context.Context, label *models.Label) error

	// Delete removes a label. Returns apperrors.ErrNotFound if it does not exist.
	Delete(ctx context.Context, organizationID, id int64) error

	// ApplyBulkUpdate creates missing labels and attaches labels to buildings
	// in one transaction.
	ApplyBulkUpdate(ctx context.Context, organizationID int64, req *models.BulkUpdateRequest) (*models.ServerLabelState, error)

	// UpdateBuildingLabels removes then adds persisted labels on buildings in one transaction.
	UpdateBuildingLabels(ctx context.Context, organizationID int64, update *models.BuildingLabelsUpdate) error
}

// labelRepository implements LabelRepository using PostgreSQL.
type labelRepository struct{}

// NewLabelRepository creates a new label repository.
func NewLabelRepository() LabelRepository {
	return &labelRepository{}
}

var _ LabelRepository = (*labelRepository)(nil)

const labelColumns = "id, organization_id, name, color, created_at"

func (r *labelRepository) List(ctx context.Context, organizationID int64) ([]models.Label, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx,
		"SELECT "+labelColumns+" FROM labels WHERE organization_id = $1 ORDER BY name, id",
		organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return collectLabels(rows)
}

func (r *labelRepository) ListByNames(ctx context.Context, organizationID int64, names []string) ([]models.Label, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}
	if len(names) == 0 {
		return []models.Label{}, nil
	}

	rows, err := scope.Conn.Query(ctx,
		"SELECT "+labelColumns+" FROM labels WHERE organization_id = $1 AND name = ANY($2) ORDER BY name, id",
		organizationID, names)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels by name: %w", err)
	}
	return collectLabels(rows)
}

func (r *labelRepository) AppliedLabelIDs(ctx context.Context, organizationID int64, buildingIDs []int64) (map[int64]bool, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	applied := make(map[int64]bool)
	if len(buildingIDs) == 0 {
		return applied, nil
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT DISTINCT bl.label_id
		FROM building_labels bl
		JOIN buildings b ON b.id = bl.building_id
		WHERE b.organization_id = $1 AND bl.building_id = ANY($2)`,
		organizationID, buildingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load applied labels: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan applied labels: %w", err)
	}
	for _, id := range ids {
		applied[id] = true
	}
	return applied, nil
}

func (r *labelRepository) Create(ctx context.Context, label *models.Label) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	var id int64
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO labels (organization_id, name, color)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		label.OrganizationID, label.Name, label.Color,
	).Scan(&id, &label.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create label: %w", err)
	}

	label.ID = models.LabelID(id)
	label.StyleClass = labels.LookupStyleClass(label.Color)
	return nil
}

func (r *labelRepository) Delete(ctx context.Context, organizationID, id int64) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx,
		"DELETE FROM labels WHERE organization_id = $1 AND id = $2", organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ApplyBulkUpdate resolves every update to a persisted label, creating
// ephemeral labels by (organization, name), and links it to the listed
// buildings. Linking is idempotent. Label ids or building ids that do not
// belong to the organization fail the whole request with a ValidationError.
func (r *labelRepository) ApplyBulkUpdate(ctx context.Context, organizationID int64, req *models.BulkUpdateRequest) (*models.ServerLabelState, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var state *models.ServerLabelState
	err := scope.InTx(ctx, func(tx pgx.Tx) error {
		persisted, err := loadLabelsByID(ctx, tx, organizationID, req.LabelIDs())
		if err != nil {
			return err
		}

		var buildingIDs []int64
		for _, u := range req.Updates {
			buildingIDs = append(buildingIDs, u.BuildingIDs...)
		}
		slices.Sort(buildingIDs)
		buildingIDs = slices.Compact(buildingIDs)
		if err := checkBuildings(ctx, tx, organizationID, buildingIDs); err != nil {
			return err
		}

		state = &models.ServerLabelState{
			Labels:           make([]models.Label, 0, len(req.Updates)),
			BuildingsUpdated: len(buildingIDs),
		}
		for _, u := range req.Updates {
			var label models.Label
			if u.LabelID != nil {
				label = persisted[*u.LabelID]
			} else if label, err = getOrCreateLabel(ctx, tx, organizationID, u.LabelName, u.LabelColor); err != nil {
				return err
			}

			if err := attachLabel(ctx, tx, *label.ID, u.BuildingIDs); err != nil {
				return err
			}
			label.IsApplied = len(u.BuildingIDs) > 0
			state.Labels = append(state.Labels, label)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *labelRepository) UpdateBuildingLabels(ctx context.Context, organizationID int64, update *models.BuildingLabelsUpdate) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	return scope.InTx(ctx, func(tx pgx.Tx) error {
		if err := checkBuildings(ctx, tx, organizationID, update.BuildingIDs); err != nil {
			return err
		}
		// Unknown label ids are ignored, matching a filter on the organization.
		if len(update.RemoveLabelIDs) > 0 && len(update.BuildingIDs) > 0 {
			_, err := tx.Exec(ctx, `
				DELETE FROM building_labels bl
				USING labels l
				WHERE bl.label_id = l.id
				  AND l.organization_id = $1
				  AND bl.label_id = ANY($2)
				  AND bl.building_id = ANY($3)`,
				organizationID, update.RemoveLabelIDs, update.BuildingIDs)
			if err != nil {
				return fmt.Errorf("failed to remove building labels: %w", err)
			}
		}
		if len(update.AddLabelIDs) > 0 && len(update.BuildingIDs) > 0 {
			_, err := tx.Exec(ctx, `
				INSERT INTO building_labels (building_id, label_id)
				SELECT b.id, l.id
				FROM unnest($2::bigint[]) AS b(id)
				CROSS JOIN labels l
				WHERE l.organization_id = $1 AND l.id = ANY($3)
				ON CONFLICT DO NOTHING`,
				organizationID, update.BuildingIDs, update.AddLabelIDs)
			if err != nil {
				return fmt.Errorf("failed to add building labels: %w", err)
			}
		}
		return nil
	})
}

// ============================================================================
// Transaction helpers
// ============================================================================

func loadLabelsByID(ctx context.Context, tx pgx.Tx, organizationID int64, ids []int64) (map[int64]models.Label, error) {
	out := make(map[int64]models.Label, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := tx.Query(ctx,
		"SELECT "+labelColumns+" FROM labels WHERE organization_id = $1 AND id = ANY($2)",
		organizationID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	found, err := collectLabels(rows)
	if err != nil {
		return nil, err
	}
	for _, l := range found {
		out[*l.ID] = l
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("label_id", "labels %v do not belong to organization %d", missing, organizationID)
	}
	return out, nil
}

func checkBuildings(ctx context.Context, tx pgx.Tx, organizationID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := tx.Query(ctx,
		"SELECT id FROM buildings WHERE organization_id = $1 AND id = ANY($2)",
		organizationID, ids)
	if err != nil {
		return fmt.Errorf("failed to check buildings: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return fmt.Errorf("failed to scan buildings: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if !slices.Contains(found, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("building_ids", "unknown building ids: %v", missing)
	}
	return nil
}

// getOrCreateLabel returns the label named name, creating it with color when
// absent. An existing label keeps its color.
func getOrCreateLabel(ctx context.Context, tx pgx.Tx, organizationID int64, name, color string) (models.Label, error) {
	rows, err := tx.Query(ctx, `
		INSERT INTO labels (organization_id, name, color)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING `+labelColumns,
		organizationID, name, color)
	if err != nil {
		return models.Label{}, fmt.Errorf("failed to get or create label %q: %w", name, err)
	}
	created, err := collectLabels(rows)
	if err != nil {
		return models.Label{}, err
	}
	if len(created) != 1 {
		return models.Label{}, fmt.Errorf("get or create label %q returned %d rows", name, len(created))
	}
	return created[0], nil
}

func attachLabel(ctx context.Context, tx pgx.Tx, labelID int64, buildingIDs []int64) error {
	if len(buildingIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO building_labels (building_id, label_id)
		SELECT unnest($1::bigint[]), $2
		ON CONFLICT DO NOTHING`,
		buildingIDs, labelID)
	if err != nil {
		return fmt.Errorf("failed to attach label %d: %w", labelID, err)
	}
	return nil
}

func collectLabels(rows pgx.Rows) ([]models.Label, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Label, error) {
		var l models.Label
		var id int64
		if err := row.Scan(&id, &l.OrganizationID, &l.Name, &l.Color, &l.CreatedAt); err != nil {
			return l, err
		}
		l.ID = models.LabelID(id)
		l.StyleClass = labels.LookupStyleClass(l.Color)
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan labels: %w", err)
	}
	if out == nil {
		out = []models.Label{}
	}
	return out, nil
}
