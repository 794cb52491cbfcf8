package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/cleansing-engine/pkg/apperrors"
	"github.com/ekaya-inc/cleansing-engine/pkg/database"
	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// ImportFileRepository defines the interface for import file data access.
type ImportFileRepository interface {
	// GetByID returns the import file if it belongs to the organization,
	// otherwise apperrors.ErrNotFound.
	GetByID(ctx context.Context, organizationID, id int64) (*models.ImportFile, error)

	// Create inserts an import file record.
	Create(ctx context.Context, file *models.ImportFile) error
}

type importFileRepository struct{}

// NewImportFileRepository creates a new import file repository.
func NewImportFileRepository() ImportFileRepository {
	return &importFileRepository{}
}

var _ ImportFileRepository = (*importFileRepository)(nil)

func (r *importFileRepository) GetByID(ctx context.Context, organizationID, id int64) (*models.ImportFile, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	var f models.ImportFile
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, organization_id, name, uploaded_at
		FROM import_files
		WHERE organization_id = $1 AND id = $2`,
		organizationID, id,
	).Scan(&f.ID, &f.OrganizationID, &f.Name, &f.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import file: %w", err)
	}
	return &f, nil
}

func (r *importFileRepository) Create(ctx context.Context, file *models.ImportFile) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO import_files (organization_id, name)
		VALUES ($1, $2)
		RETURNING id, uploaded_at`,
		file.OrganizationID, file.Name,
	).Scan(&file.ID, &file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to create import file: %w", err)
	}
	return nil
}
