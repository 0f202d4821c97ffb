// Package repositories implements the data access layer (repository pattern) for Secrelo.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this layer.
//
// Multi-statement mutations (repo+owner creation, invite acceptance, membership
// transitions, base secret creation) run inside a single transaction, and the
// permission read that gates each mutation happens inside that same transaction
// so check and write observe one consistent snapshot. Envelope fan-out is the
// deliberate exception: each recipient is an independent statement whose
// failure is isolated and reported, never rolled back with its siblings.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/secrelo/secrelo-server/internal/db/models"
)

// querier is the subset of *sql.DB and *sql.Tx the shared query helpers need,
// so gate reads can run either standalone or inside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const memberColumns = `id, repo_id, user_id, member_role, member_permissions, status, created_at, updated_at`

// scanMember scans a repo_members row in memberColumns order.
func scanMember(row *sql.Row) (*models.RepoMember, error) {
	m := &models.RepoMember{}
	err := row.Scan(
		&m.ID,
		&m.RepoID,
		&m.UserID,
		&m.MemberRole,
		&m.MemberPermissions,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	return m, nil
}

// getMembership reads a user's membership row for a repo through q. Returns
// (nil, nil) when no row exists. Used for every authorization gate read;
// when q is a transaction the read shares the snapshot of the gated write.
func getMembership(ctx context.Context, q querier, repoID, userID string) (*models.RepoMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM repo_members
		WHERE repo_id = $1 AND user_id = $2
	`
	return scanMember(q.QueryRowContext(ctx, query, repoID, userID))
}

// getMembershipForUpdate is getMembership with a row lock, for transitions
// that will rewrite the target row in the same transaction.
func getMembershipForUpdate(ctx context.Context, q querier, repoID, memberID string) (*models.RepoMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM repo_members
		WHERE repo_id = $1 AND id = $2
		FOR UPDATE
	`
	return scanMember(q.QueryRowContext(ctx, query, repoID, memberID))
}
