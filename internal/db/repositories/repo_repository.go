// repo_repository.go implements RepoRepository, providing database queries for
// secret-sharing repos. Repo creation is transactional: the repo row and the
// creator's owner membership land together or not at all.
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

// RepoRepository handles repo database operations
type RepoRepository struct {
	db *sql.DB
}

// NewRepoRepository creates a new RepoRepository
func NewRepoRepository(db *sql.DB) *RepoRepository {
	return &RepoRepository{db: db}
}

const repoColumns = `id, created_by, updated_by, name, description, type, created_at, updated_at`

// CreateRepoWithOwner persists a new repo and the creator's membership in a
// single transaction. The creator's row is written with owner permission and
// active status, so a repo is never observable without its owner. Returns the
// repo with its member count, which is 1 by construction.
func (r *RepoRepository) CreateRepoWithOwner(ctx context.Context, repo *models.Repo, ownerRole string) (*models.RepoWithMemberCount, error) {
	repo.ID = uuid.New().String()
	repo.UpdatedBy = repo.CreatedBy
	repo.CreatedAt = time.Now()
	repo.UpdatedAt = repo.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	repoQuery := `
		INSERT INTO repos (id, created_by, updated_by, name, description, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, repoQuery,
		repo.ID, repo.CreatedBy, repo.UpdatedBy, repo.Name, repo.Description, repo.Type, repo.CreatedAt, repo.UpdatedAt,
	); err != nil {
		return nil, domain.FromStore(err, "a repo with this name already exists")
	}

	memberQuery := `
		INSERT INTO repo_members (id, repo_id, user_id, member_role, member_permissions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, memberQuery,
		uuid.New().String(), repo.ID, repo.CreatedBy, ownerRole,
		string(authz.PermissionOwner), models.MemberStatusActive, repo.CreatedAt, repo.CreatedAt,
	); err != nil {
		return nil, domain.FromStore(err, "creator is already a member of this repo")
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.FromStore(err, "a repo with this name already exists")
	}

	return &models.RepoWithMemberCount{Repo: *repo, MemberCount: 1}, nil
}

// ListUserRepos retrieves every repo where the user holds an active
// membership, each joined with its live active-member count.
func (r *RepoRepository) ListUserRepos(ctx context.Context, userID string) ([]*models.RepoWithMemberCount, error) {
	query := `
		SELECT r.id, r.created_by, r.updated_by, r.name, r.description, r.type, r.created_at, r.updated_at,
		       (SELECT COUNT(*) FROM repo_members mc WHERE mc.repo_id = r.id AND mc.status = 'active') AS member_count
		FROM repos r
		INNER JOIN repo_members rm ON rm.repo_id = r.id
		WHERE rm.user_id = $1 AND rm.status = 'active'
		ORDER BY r.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user repos: %w", err)
	}
	defer rows.Close()

	repos := make([]*models.RepoWithMemberCount, 0)
	for rows.Next() {
		repo := &models.RepoWithMemberCount{}
		if err := rows.Scan(
			&repo.ID,
			&repo.CreatedBy,
			&repo.UpdatedBy,
			&repo.Name,
			&repo.Description,
			&repo.Type,
			&repo.CreatedAt,
			&repo.UpdatedAt,
			&repo.MemberCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan repo: %w", err)
		}
		repos = append(repos, repo)
	}

	return repos, rows.Err()
}

// GetRepoByID retrieves a repo by ID
func (r *RepoRepository) GetRepoByID(ctx context.Context, repoID string) (*models.Repo, error) {
	query := `SELECT ` + repoColumns + ` FROM repos WHERE id = $1`

	repo := &models.Repo{}
	err := r.db.QueryRowContext(ctx, query, repoID).Scan(
		&repo.ID,
		&repo.CreatedBy,
		&repo.UpdatedBy,
		&repo.Name,
		&repo.Description,
		&repo.Type,
		&repo.CreatedAt,
		&repo.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo: %w", err)
	}
	return repo, nil
}

// GetRepoWithMemberCount retrieves a repo joined with its active-member count
func (r *RepoRepository) GetRepoWithMemberCount(ctx context.Context, repoID string) (*models.RepoWithMemberCount, error) {
	query := `
		SELECT r.id, r.created_by, r.updated_by, r.name, r.description, r.type, r.created_at, r.updated_at,
		       (SELECT COUNT(*) FROM repo_members mc WHERE mc.repo_id = r.id AND mc.status = 'active') AS member_count
		FROM repos r
		WHERE r.id = $1
	`

	repo := &models.RepoWithMemberCount{}
	err := r.db.QueryRowContext(ctx, query, repoID).Scan(
		&repo.ID,
		&repo.CreatedBy,
		&repo.UpdatedBy,
		&repo.Name,
		&repo.Description,
		&repo.Type,
		&repo.CreatedAt,
		&repo.UpdatedAt,
		&repo.MemberCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo: %w", err)
	}
	return repo, nil
}

// GetRepoDetails retrieves a repo together with its full member list joined
// with each member's name and email. Returns nil when the repo does not exist.
func (r *RepoRepository) GetRepoDetails(ctx context.Context, repoID string) (*models.RepoDetails, error) {
	repo, err := r.GetRepoByID(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, nil
	}

	query := `
		SELECT rm.id, rm.repo_id, rm.user_id, rm.member_role, rm.member_permissions, rm.status, rm.created_at, rm.updated_at,
		       u.full_name, u.email
		FROM repo_members rm
		INNER JOIN users u ON u.id = rm.user_id
		WHERE rm.repo_id = $1
		ORDER BY rm.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repo members: %w", err)
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
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.RepoDetails{Repo: repo, Members: members}, nil
}

// GetMembership reads a user's membership row for a repo outside any
// transaction, for read-only gate checks like secret listing.
func (r *RepoRepository) GetMembership(ctx context.Context, repoID, userID string) (*models.RepoMember, error) {
	return getMembership(ctx, r.db, repoID, userID)
}
