// invite_repository.go implements InviteRepository, managing single-use
// membership invites. Acceptance is transactional: the invite row is locked,
// validated, consumed, and the membership inserted under the same snapshot, so
// an invite can never admit a user twice.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/secrelo/secrelo-server/internal/authz"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
)

// InviteRepository handles repo invite database operations
type InviteRepository struct {
	db *sql.DB
}

// NewInviteRepository creates a new InviteRepository
func NewInviteRepository(db *sql.DB) *InviteRepository {
	return &InviteRepository{db: db}
}

const inviteColumns = `id, repo_id, invitee_id, invitee_name, member_role, member_permissions, status, expires_at, created_at`

func scanInvite(row *sql.Row) (*models.RepoInvite, error) {
	inv := &models.RepoInvite{}
	err := row.Scan(
		&inv.ID,
		&inv.RepoID,
		&inv.InviteeID,
		&inv.InviteeName,
		&inv.MemberRole,
		&inv.MemberPermissions,
		&inv.Status,
		&inv.ExpiresAt,
		&inv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invite: %w", err)
	}
	return inv, nil
}

// CreateInvite persists a new pending invite. The inviter's membership is
// re-read inside the same transaction as the insert: only an active
// admin-or-above member may extend an invite, and the invited permission must
// be a known lattice label.
func (r *InviteRepository) CreateInvite(ctx context.Context, invite *models.RepoInvite, inviterID string) (*models.RepoInvite, error) {
	if !authz.Permission(invite.MemberPermissions).Valid() {
		return nil, domain.Validationf("invalid permission %q", invite.MemberPermissions)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	acting, err := getMembership(ctx, tx, invite.RepoID, inviterID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if d := authz.Check(acting, authz.AdminOrAbove); !d.Allowed {
		return nil, d.Err()
	}

	existing, err := getMembership(ctx, tx, invite.RepoID, invite.InviteeID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if existing != nil {
		return nil, domain.Conflictf("user is already a member of this repo")
	}

	invite.ID = uuid.New().String()
	invite.Status = models.InviteStatusPending
	invite.CreatedAt = time.Now()

	query := `
		INSERT INTO repo_invites (id, repo_id, invitee_id, invitee_name, member_role, member_permissions, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, query,
		invite.ID, invite.RepoID, invite.InviteeID, invite.InviteeName,
		invite.MemberRole, invite.MemberPermissions, invite.Status, invite.ExpiresAt, invite.CreatedAt,
	); err != nil {
		return nil, domain.FromStore(err, "an invite for this user already exists")
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.FromStore(err, "an invite for this user already exists")
	}
	return invite, nil
}

// ListUserInvites retrieves a user's pending invites, newest first
func (r *InviteRepository) ListUserInvites(ctx context.Context, userID string) ([]*models.RepoInvite, error) {
	query := `
		SELECT ` + inviteColumns + `
		FROM repo_invites
		WHERE invitee_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	invites := make([]*models.RepoInvite, 0)
	for rows.Next() {
		inv := &models.RepoInvite{}
		if err := rows.Scan(
			&inv.ID,
			&inv.RepoID,
			&inv.InviteeID,
			&inv.InviteeName,
			&inv.MemberRole,
			&inv.MemberPermissions,
			&inv.Status,
			&inv.ExpiresAt,
			&inv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// GetInviteDetails retrieves an invite joined with the repo's name, type,
// active-member count, and whether the invitee already holds a membership, so
// the client can render the accept/decline decision. Returns nil when the
// invite does not exist or is addressed to a different user.
func (r *InviteRepository) GetInviteDetails(ctx context.Context, inviteID, userID string) (*models.RepoInviteDetails, error) {
	query := `
		SELECT ri.id, ri.repo_id, ri.invitee_id, ri.invitee_name, ri.member_role, ri.member_permissions, ri.status, ri.expires_at, ri.created_at,
		       r.name, r.description, r.type,
		       (SELECT COUNT(*) FROM repo_members mc WHERE mc.repo_id = r.id AND mc.status = 'active') AS member_count,
		       EXISTS (SELECT 1 FROM repo_members rm WHERE rm.repo_id = r.id AND rm.user_id = $2) AS user_is_member
		FROM repo_invites ri
		INNER JOIN repos r ON r.id = ri.repo_id
		WHERE ri.id = $1 AND ri.invitee_id = $2
	`

	d := &models.RepoInviteDetails{}
	err := r.db.QueryRowContext(ctx, query, inviteID, userID).Scan(
		&d.ID,
		&d.RepoID,
		&d.InviteeID,
		&d.InviteeName,
		&d.MemberRole,
		&d.MemberPermissions,
		&d.Status,
		&d.ExpiresAt,
		&d.CreatedAt,
		&d.RepoName,
		&d.RepoDescription,
		&d.RepoType,
		&d.MemberCount,
		&d.UserIsMember,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite details: %w", err)
	}
	return d, nil
}

// AcceptInvite consumes a pending invite and creates the invitee's membership
// in one transaction. The invite row is locked for the duration, then checked:
// missing invites are NotFound, already-processed or expired invites are
// Conflict, and an existing membership for the pair is Conflict. memberRole is
// the role label the accepting user chose for themselves; when empty, the
// invite's role carries over. initialStatus is the join-policy-determined
// status for the new member (active or pending). The unique (repo_id, user_id)
// constraint backstops concurrent acceptance: a duplicate insert surfaces as
// Conflict at commit.
func (r *InviteRepository) AcceptInvite(ctx context.Context, inviteID, userID, memberRole, initialStatus string) (*models.RepoMember, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inviteQuery := `
		SELECT ` + inviteColumns + `
		FROM repo_invites
		WHERE id = $1 AND invitee_id = $2
		FOR UPDATE
	`
	invite, err := scanInvite(tx.QueryRowContext(ctx, inviteQuery, inviteID, userID))
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if invite == nil {
		return nil, domain.NotFoundf("invite not found")
	}
	if invite.Status != models.InviteStatusPending {
		return nil, domain.Conflictf("invite has already been processed")
	}
	if invite.IsExpired(time.Now()) {
		return nil, domain.Conflictf("invite has expired")
	}

	existing, err := getMembership(ctx, tx, invite.RepoID, userID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if existing != nil {
		return nil, domain.Conflictf("you are already a member of this repo")
	}

	if memberRole == "" {
		memberRole = invite.MemberRole
	}

	now := time.Now()
	member := &models.RepoMember{
		ID:                uuid.New().String(),
		RepoID:            invite.RepoID,
		UserID:            userID,
		MemberRole:        memberRole,
		MemberPermissions: invite.MemberPermissions,
		Status:            initialStatus,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	memberQuery := `
		INSERT INTO repo_members (id, repo_id, user_id, member_role, member_permissions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, memberQuery,
		member.ID, member.RepoID, member.UserID, member.MemberRole,
		member.MemberPermissions, member.Status, member.CreatedAt, member.UpdatedAt,
	); err != nil {
		return nil, domain.FromStore(err, "you are already a member of this repo")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE repo_invites SET status = $1 WHERE id = $2`,
		models.InviteStatusAccepted, invite.ID,
	); err != nil {
		return nil, domain.FromStore(err, "")
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.FromStore(err, "you are already a member of this repo")
	}
	return member, nil
}
