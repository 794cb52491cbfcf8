package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantScope wraps a connection bound to one organization and ensures cleanup.
// The connection has app.current_organization_id set for RLS policy evaluation.
type TenantScope struct {
	Conn           *pgxpool.Conn
	OrganizationID int64
}

// Close resets tenant context and releases connection to pool.
// This MUST be called to prevent tenant context from leaking to the next request.
func (s *TenantScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_organization_id")
	s.Conn.Release()
}

// InTx runs fn inside a transaction on the scoped connection. The transaction
// is committed when fn returns nil and rolled back otherwise.
func (s *TenantScope) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithTenant acquires a connection and sets the organization context for RLS.
// The returned TenantScope MUST be closed with defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, organizationID int64) (*TenantScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('app.current_organization_id', $1, false)",
		strconv.FormatInt(organizationID, 10))
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &TenantScope{Conn: conn, OrganizationID: organizationID}, nil
}
