package database

import (
	"context"
)

type contextKey string

const (
	// TenantScopeKey is the context key for storing the organization-scoped database connection.
	TenantScopeKey contextKey = "tenantScope"
)

// GetTenantScope retrieves the organization-scoped database connection from context.
// Returns nil and false if not present.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(TenantScopeKey).(*TenantScope)
	return scope, ok
}

// SetTenantScope stores the organization-scoped database connection in context.
func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, TenantScopeKey, scope)
}

// TenantScopeProvider creates organization-scoped contexts outside HTTP
// requests, for example in command-line tools and tests.
type TenantScopeProvider struct {
	db *DB
}

// NewTenantScopeProvider creates a TenantScopeProvider for the given database.
func NewTenantScopeProvider(db *DB) *TenantScopeProvider {
	return &TenantScopeProvider{db: db}
}

// WithTenantScope returns a context with tenant scope set for the given organization.
// The cleanup function must be called when the scope is no longer needed.
func (p *TenantScopeProvider) WithTenantScope(ctx context.Context, organizationID int64) (context.Context, func(), error) {
	scope, err := p.db.WithTenant(ctx, organizationID)
	if err != nil {
		return nil, nil, err
	}
	tenantCtx := SetTenantScope(ctx, scope)
	return tenantCtx, func() { scope.Close() }, nil
}
