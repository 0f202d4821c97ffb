// identity_repository.go implements IdentityRepository, providing database
// queries for stored keypair envelopes and the public keys of a repo's active
// members.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/secrelo/secrelo-server/internal/db/models"
)

// IdentityRepository handles keypair envelope database operations
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// GetEnvelope retrieves a user's keypair envelope
func (r *IdentityRepository) GetEnvelope(ctx context.Context, userID string) (*models.KeyEnvelope, error) {
	query := `
		SELECT user_id, public_key, encrypted_private_key, private_key_salt, private_key_nonce, kdf_alg, kdf_ops, kdf_mem, created_at
		FROM user_keys
		WHERE user_id = $1
	`

	env := &models.KeyEnvelope{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&env.UserID,
		&env.PublicKey,
		&env.EncryptedPrivateKey,
		&env.PrivateKeySalt,
		&env.PrivateKeyNonce,
		&env.KDFAlgorithm,
		&env.KDFOps,
		&env.KDFMemory,
		&env.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key envelope: %w", err)
	}
	return env, nil
}

// GetRepoPublicKeys retrieves the public keys of every active member of a
// repo, so a client can seal a DEK for each of them.
func (r *IdentityRepository) GetRepoPublicKeys(ctx context.Context, repoID string) ([]*models.MemberPublicKey, error) {
	query := `
		SELECT rm.user_id, uk.public_key
		FROM repo_members rm
		INNER JOIN user_keys uk ON uk.user_id = rm.user_id
		WHERE rm.repo_id = $1 AND rm.status = 'active'
	`

	rows, err := r.db.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get repo public keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*models.MemberPublicKey, 0)
	for rows.Next() {
		k := &models.MemberPublicKey{}
		if err := rows.Scan(&k.UserID, &k.PublicKey); err != nil {
			return nil, fmt.Errorf("failed to scan public key: %w", err)
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}
