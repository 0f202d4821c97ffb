// user_repository.go implements UserRepository, providing database queries for
// user accounts and the transactional registration path that persists a user
// together with their keypair envelope.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, full_name, email, password_hash, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&u.PasswordHash,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

// CreateUserWithEnvelope persists a new user and their keypair envelope in a
// single transaction. Either both rows land or neither does — a user account
// must never exist without its identity envelope, and no partial envelope is
// ever observable.
func (r *UserRepository) CreateUserWithEnvelope(ctx context.Context, user *models.User, envelope *models.KeyEnvelope) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.IsActive = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	envelope.UserID = user.ID
	envelope.CreatedAt = user.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.FromStore(err, "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	userQuery := `
		INSERT INTO users (id, full_name, email, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, userQuery,
		user.ID, user.FullName, user.Email, user.PasswordHash, user.IsActive, user.CreatedAt, user.UpdatedAt,
	); err != nil {
		return domain.FromStore(err, "a user with this email already exists")
	}

	keyQuery := `
		INSERT INTO user_keys (user_id, public_key, encrypted_private_key, private_key_salt, private_key_nonce, kdf_alg, kdf_ops, kdf_mem, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, keyQuery,
		envelope.UserID, envelope.PublicKey, envelope.EncryptedPrivateKey,
		envelope.PrivateKeySalt, envelope.PrivateKeyNonce,
		envelope.KDFAlgorithm, envelope.KDFOps, envelope.KDFMemory, envelope.CreatedAt,
	); err != nil {
		return domain.FromStore(err, "user already has a key envelope")
	}

	if err := tx.Commit(); err != nil {
		return domain.FromStore(err, "a user with this email already exists")
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email, including the password hash for
// login verification. Callers must not serialize the hash outward.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}
