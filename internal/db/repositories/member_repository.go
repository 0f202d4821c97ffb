// member_repository.go implements MemberRepository, driving the membership
// lifecycle (sent/pending/active/rejected). Every transition runs in a single
// transaction that re-reads the acting user's membership, checks the
// authorization gate against that fresh row, locks the target, validates the
// transition, and writes.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/secrelo/secrelo-server/internal/authz"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
)

// MemberRepository handles repo membership database operations
type MemberRepository struct {
	db *sql.DB
}

// NewMemberRepository creates a new MemberRepository
func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// transition runs fn inside a transaction after gating on the acting user's
// fresh membership row and locking the target member row. fn receives the
// locked target and performs the write through tx.
func (r *MemberRepository) transition(
	ctx context.Context,
	repoID, actingUserID, memberID string,
	req authz.Requirement,
	fn func(tx *sql.Tx, acting, target *models.RepoMember) (*models.RepoMember, error),
) (*models.RepoMember, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	acting, err := getMembership(ctx, tx, repoID, actingUserID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if d := authz.Check(acting, req); !d.Allowed {
		return nil, d.Err()
	}

	target, err := getMembershipForUpdate(ctx, tx, repoID, memberID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if target == nil {
		return nil, domain.NotFoundf("member not found")
	}

	updated, err := fn(tx, acting, target)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.FromStore(err, "")
	}
	return updated, nil
}

// setStatus rewrites a locked member row's status and returns the updated row.
func setStatus(ctx context.Context, tx *sql.Tx, target *models.RepoMember, status string) (*models.RepoMember, error) {
	query := `
		UPDATE repo_members
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	now := time.Now()
	if _, err := tx.ExecContext(ctx, query, status, now, target.ID); err != nil {
		return nil, domain.FromStore(err, "")
	}
	target.Status = status
	target.UpdatedAt = now
	return target, nil
}

// ApproveMember transitions a pending membership to active. The acting user
// must hold an active admin-or-above membership in the same repo.
func (r *MemberRepository) ApproveMember(ctx context.Context, repoID, actingUserID, memberID string) (*models.RepoMember, error) {
	return r.transition(ctx, repoID, actingUserID, memberID, authz.AdminOrAbove,
		func(tx *sql.Tx, _, target *models.RepoMember) (*models.RepoMember, error) {
			if target.Status != models.MemberStatusPending {
				return nil, domain.Conflictf("member is not pending approval")
			}
			return setStatus(ctx, tx, target, models.MemberStatusActive)
		})
}

// DeclineMember transitions a pending membership to rejected
func (r *MemberRepository) DeclineMember(ctx context.Context, repoID, actingUserID, memberID string) (*models.RepoMember, error) {
	return r.transition(ctx, repoID, actingUserID, memberID, authz.AdminOrAbove,
		func(tx *sql.Tx, _, target *models.RepoMember) (*models.RepoMember, error) {
			if target.Status != models.MemberStatusPending {
				return nil, domain.Conflictf("member is not pending approval")
			}
			return setStatus(ctx, tx, target, models.MemberStatusRejected)
		})
}

// UpdateMember applies a partial update to an active member's permission or
// role. Only present fields are written. The permission lattice is enforced
// against the acting user's fresh row: owners may assign anything, admins may
// neither modify an owner nor grant owner.
func (r *MemberRepository) UpdateMember(ctx context.Context, repoID, actingUserID, memberID string, update models.MemberUpdate) (*models.RepoMember, error) {
	if update.IsEmpty() {
		return nil, domain.Validationf("no fields to update")
	}
	if update.Permission != nil && !authz.Permission(*update.Permission).Valid() {
		return nil, domain.Validationf("invalid permission %q", *update.Permission)
	}

	return r.transition(ctx, repoID, actingUserID, memberID, authz.AdminOrAbove,
		func(tx *sql.Tx, acting, target *models.RepoMember) (*models.RepoMember, error) {
			if target.Status != models.MemberStatusActive {
				return nil, domain.Conflictf("member is not active")
			}

			var requested authz.Permission
			if update.Permission != nil {
				requested = authz.Permission(*update.Permission)
			}
			if !authz.CanModifyMember(authz.Permission(acting.MemberPermissions), authz.Permission(target.MemberPermissions), requested) {
				return nil, domain.Authorizationf("insufficient permission to modify this member")
			}

			if update.Permission != nil {
				target.MemberPermissions = *update.Permission
			}
			if update.Role != nil {
				target.MemberRole = *update.Role
			}
			target.UpdatedAt = time.Now()

			query := `
				UPDATE repo_members
				SET member_permissions = $1, member_role = $2, updated_at = $3
				WHERE id = $4
			`
			if _, err := tx.ExecContext(ctx, query,
				target.MemberPermissions, target.MemberRole, target.UpdatedAt, target.ID,
			); err != nil {
				return nil, domain.FromStore(err, "")
			}
			return target, nil
		})
}

// RemoveMember deletes a membership row. The acting user must hold an active
// admin-or-above membership, and the lattice applies: admins cannot remove an
// owner. Returns the removed row.
func (r *MemberRepository) RemoveMember(ctx context.Context, repoID, actingUserID, memberID string) (*models.RepoMember, error) {
	return r.transition(ctx, repoID, actingUserID, memberID, authz.AdminOrAbove,
		func(tx *sql.Tx, acting, target *models.RepoMember) (*models.RepoMember, error) {
			if !authz.CanModifyMember(authz.Permission(acting.MemberPermissions), authz.Permission(target.MemberPermissions), "") {
				return nil, domain.Authorizationf("insufficient permission to remove this member")
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM repo_members WHERE id = $1`, target.ID); err != nil {
				return nil, domain.FromStore(err, "")
			}
			return target, nil
		})
}

// listMembers retrieves members of a repo joined with user details, optionally
// filtered by status.
func (r *MemberRepository) listMembers(ctx context.Context, repoID, status string) ([]*models.RepoMemberWithUser, error) {
	query := `
		SELECT rm.id, rm.repo_id, rm.user_id, rm.member_role, rm.member_permissions, rm.status, rm.created_at, rm.updated_at,
		       u.full_name, u.email
		FROM repo_members rm
		INNER JOIN users u ON u.id = rm.user_id
		WHERE rm.repo_id = $1
	`
	args := []interface{}{repoID}
	if status != "" {
		query += ` AND rm.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY rm.created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer rows.Close()

	members := make([]*models.RepoMemberWithUser, 0)
	for rows.Next() {
		m := &models.RepoMemberWithUser{}
		if err := rows.Scan(
			&m.ID,
			&m.RepoID,
			&m.UserID,
			&m.MemberRole,
			&m.MemberPermissions,
			&m.Status,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.UserFullName,
			&m.UserEmail,
		); err != nil {
			return nil, domain.FromStore(err, "")
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListMembers retrieves all members of a repo with user details
func (r *MemberRepository) ListMembers(ctx context.Context, repoID string) ([]*models.RepoMemberWithUser, error) {
	return r.listMembers(ctx, repoID, "")
}

// ListPendingMembers retrieves members awaiting approval, for admin review
func (r *MemberRepository) ListPendingMembers(ctx context.Context, repoID string) ([]*models.RepoMemberWithUser, error) {
	return r.listMembers(ctx, repoID, models.MemberStatusPending)
}
