package testhelpers

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/cleansing-engine/pkg/database"
)

// Organization is a freshly seeded organization with an organization-scoped context.
type Organization struct {
	ID  int64
	Ctx context.Context
}

// NewOrganization inserts a uniquely named organization and returns a context
// carrying a tenant scope for it. The scope is closed when the test ends.
func NewOrganization(t *testing.T, db *database.DB) *Organization {
	t.Helper()
	ctx := context.Background()

	var id int64
	name := fmt.Sprintf("test-org-%s", uuid.NewString()[:8])
	if err := db.Pool.QueryRow(ctx,
		"INSERT INTO organizations (name) VALUES ($1) RETURNING id", name).Scan(&id); err != nil {
		t.Fatalf("failed to create organization: %v", err)
	}

	scopedCtx, cleanup, err := database.NewTenantScopeProvider(db).WithTenantScope(ctx, id)
	if err != nil {
		t.Fatalf("failed to create tenant scope: %v", err)
	}
	t.Cleanup(func() {
		cleanup()
		_, _ = db.Pool.Exec(context.Background(), "DELETE FROM organizations WHERE id = $1", id)
	})

	return &Organization{ID: id, Ctx: scopedCtx}
}

// InsertBuilding adds a building row for the organization and returns its id.
func InsertBuilding(t *testing.T, db *database.DB, organizationID int64, addressLine1 string) int64 {
	t.Helper()
	var id int64
	if err := db.Pool.QueryRow(context.Background(),
		"INSERT INTO buildings (organization_id, address_line_1) VALUES ($1, $2) RETURNING id",
		organizationID, addressLine1).Scan(&id); err != nil {
		t.Fatalf("failed to create building: %v", err)
	}
	return id
}
