// secret_repository.go implements SecretRepository, managing encrypted secrets
// and per-recipient key envelopes. Base secret writes are transactional and
// gate-checked. Envelope batches are deliberately best-effort: each entry runs
// in its own short transaction holding both the gate read and the write, and
// failures are reported in a structured batch result instead of rolling back
// siblings.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/secrelo/secrelo-server/internal/authz"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
)

// SecretRepository handles secret and envelope database operations
type SecretRepository struct {
	db *sql.DB
}

// NewSecretRepository creates a new SecretRepository
func NewSecretRepository(db *sql.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

const secretColumns = `id, repo_id, created_by, updated_by, name, description, type, version, encrypted_secret, nonce, created_at, updated_at`

func scanSecret(row *sql.Row) (*models.Secret, error) {
	s := &models.Secret{}
	err := row.Scan(
		&s.ID,
		&s.RepoID,
		&s.CreatedBy,
		&s.UpdatedBy,
		&s.Name,
		&s.Description,
		&s.Type,
		&s.Version,
		&s.EncryptedSecret,
		&s.Nonce,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan secret: %w", err)
	}
	return s, nil
}

// CreateSecret persists a new secret and fans out its key envelopes. The base
// secret is written in a transaction whose gate read requires the creator to
// hold an active admin-or-above membership. Envelope fan-out happens after the
// base row is committed: each recipient's envelope succeeds or fails on its
// own, and the result separates the creator's envelope so they can decrypt
// the secret they just made.
func (r *SecretRepository) CreateSecret(ctx context.Context, secret *models.Secret, entries []models.EnvelopeEntry) (*models.SecretCreateResult, error) {
	secret.ID = uuid.New().String()
	secret.UpdatedBy = secret.CreatedBy
	secret.Version = 1
	secret.CreatedAt = time.Now()
	secret.UpdatedAt = secret.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	acting, err := getMembership(ctx, tx, secret.RepoID, secret.CreatedBy)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if d := authz.Check(acting, authz.AdminOrAbove); !d.Allowed {
		return nil, d.Err()
	}

	query := `
		INSERT INTO secrets (id, repo_id, created_by, updated_by, name, description, type, version, encrypted_secret, nonce, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := tx.ExecContext(ctx, query,
		secret.ID, secret.RepoID, secret.CreatedBy, secret.UpdatedBy,
		secret.Name, secret.Description, secret.Type, secret.Version,
		secret.EncryptedSecret, secret.Nonce, secret.CreatedAt, secret.UpdatedAt,
	); err != nil {
		return nil, domain.FromStore(err, "a secret with this name already exists in the repo")
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.FromStore(err, "a secret with this name already exists in the repo")
	}

	result := &models.SecretCreateResult{
		Secret:    secret,
		Envelopes: &models.EnvelopeBatchResult{Succeeded: make([]*models.UserSecret, 0), Failed: make([]models.EnvelopeFailure, 0)},
	}

	for _, entry := range entries {
		entry.SecretID = secret.ID
		us, reason := r.insertEnvelope(ctx, r.db, entry)
		if us == nil {
			slog.Warn("envelope fan-out entry failed",
				"secret_id", secret.ID, "user_id", entry.UserID, "reason", reason)
			result.Envelopes.Failed = append(result.Envelopes.Failed, models.EnvelopeFailure{Entry: entry, Reason: reason})
			continue
		}
		if us.UserID == secret.CreatedBy {
			result.CreatorEnvelope = us
		}
		result.Envelopes.Succeeded = append(result.Envelopes.Succeeded, us)
	}

	return result, nil
}

// insertEnvelope applies one recipient's envelope through q, which is either
// the pool (CreateSecret fan-out, where the base transaction already gated the
// creator) or a per-entry transaction. Returns the stored row, or nil with a
// reason when the entry is invalid or the insert fails. A duplicate
// (secret_id, user_id) pair is reported as "envelope already exists".
func (r *SecretRepository) insertEnvelope(ctx context.Context, q querier, entry models.EnvelopeEntry) (*models.UserSecret, string) {
	if entry.UserID == "" {
		return nil, "user id is required"
	}
	if entry.EncryptedKey == "" || entry.Nonce == "" || entry.SenderPublicKey == "" {
		return nil, "encrypted key, nonce and sender public key are required"
	}

	us := &models.UserSecret{
		ID:                 uuid.New().String(),
		SecretID:           entry.SecretID,
		UserID:             entry.UserID,
		EncryptedSecretKey: entry.EncryptedKey,
		Nonce:              entry.Nonce,
		SenderPublicKey:    entry.SenderPublicKey,
		CreatedAt:          time.Now(),
	}

	query := `
		INSERT INTO user_secrets (id, secret_id, user_id, encrypted_secret_key, nonce, sender_public_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := q.ExecContext(ctx, query,
		us.ID, us.SecretID, us.UserID, us.EncryptedSecretKey, us.Nonce, us.SenderPublicKey, us.CreatedAt,
	); err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			return nil, "envelope already exists"
		}
		return nil, "storage operation failed"
	}
	return us, ""
}

// applyGrantedEnvelope writes one recipient's envelope inside its own short
// transaction so the gate read and the write see the same snapshot: a
// concurrent demotion of the acting user cannot land between check and use.
// upsert selects between the grant insert and the re-seal upsert.
func (r *SecretRepository) applyGrantedEnvelope(ctx context.Context, actingUserID string, entry models.EnvelopeEntry, upsert bool) (*models.UserSecret, string) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "storage operation failed"
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if reason := r.gateSecret(ctx, tx, entry.SecretID, actingUserID); reason != "" {
		return nil, reason
	}

	var us *models.UserSecret
	var reason string
	if upsert {
		us, reason = r.upsertEnvelope(ctx, tx, entry)
	} else {
		us, reason = r.insertEnvelope(ctx, tx, entry)
	}
	if us == nil {
		return nil, reason
	}

	if err := tx.Commit(); err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			return nil, "envelope already exists"
		}
		return nil, "storage operation failed"
	}
	return us, ""
}

// upsertEnvelope writes one recipient's envelope, overwriting the sealed key
// of an existing (secret_id, user_id) row. Used by the re-seal path after a
// client-driven DEK rotation.
func (r *SecretRepository) upsertEnvelope(ctx context.Context, q querier, entry models.EnvelopeEntry) (*models.UserSecret, string) {
	us := &models.UserSecret{
		ID:                 uuid.New().String(),
		SecretID:           entry.SecretID,
		UserID:             entry.UserID,
		EncryptedSecretKey: entry.EncryptedKey,
		Nonce:              entry.Nonce,
		SenderPublicKey:    entry.SenderPublicKey,
		CreatedAt:          time.Now(),
	}

	query := `
		INSERT INTO user_secrets (id, secret_id, user_id, encrypted_secret_key, nonce, sender_public_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (secret_id, user_id) DO UPDATE
		SET encrypted_secret_key = EXCLUDED.encrypted_secret_key,
		    nonce = EXCLUDED.nonce,
		    sender_public_key = EXCLUDED.sender_public_key,
		    created_at = EXCLUDED.created_at
	`
	if _, err := q.ExecContext(ctx, query,
		us.ID, us.SecretID, us.UserID, us.EncryptedSecretKey, us.Nonce, us.SenderPublicKey, us.CreatedAt,
	); err != nil {
		return nil, "storage operation failed"
	}
	return us, ""
}

// AddRecipientEnvelopes grants one user access to a set of secrets by storing
// the sealed DEK entries the acting user produced for them. The acting user
// must hold an active admin-or-above membership in each secret's repo; each
// entry runs in its own gate-and-write transaction, so one bad entry never
// blocks the rest.
func (r *SecretRepository) AddRecipientEnvelopes(ctx context.Context, actingUserID, recipientID string, entries []models.EnvelopeEntry) (*models.EnvelopeBatchResult, error) {
	result := &models.EnvelopeBatchResult{
		Succeeded: make([]*models.UserSecret, 0),
		Failed:    make([]models.EnvelopeFailure, 0),
	}

	for _, entry := range entries {
		entry.UserID = recipientID
		if entry.SecretID == "" {
			result.Failed = append(result.Failed, models.EnvelopeFailure{Entry: entry, Reason: "secret id is required"})
			continue
		}

		us, reason := r.applyGrantedEnvelope(ctx, actingUserID, entry, false)
		if us == nil {
			slog.Warn("envelope grant entry failed",
				"secret_id", entry.SecretID, "user_id", recipientID, "reason", reason)
			result.Failed = append(result.Failed, models.EnvelopeFailure{Entry: entry, Reason: reason})
			continue
		}
		result.Succeeded = append(result.Succeeded, us)
	}

	return result, nil
}

// ReplaceRecipientEnvelopes re-seals a user's envelopes after a DEK rotation.
// Unlike AddRecipientEnvelopes, an existing (secret_id, user_id) row is
// overwritten with the freshly sealed key instead of being reported as a
// conflict; a missing row is created. Gating and per-entry isolation match the
// grant path.
func (r *SecretRepository) ReplaceRecipientEnvelopes(ctx context.Context, actingUserID, recipientID string, entries []models.EnvelopeEntry) (*models.EnvelopeBatchResult, error) {
	result := &models.EnvelopeBatchResult{
		Succeeded: make([]*models.UserSecret, 0),
		Failed:    make([]models.EnvelopeFailure, 0),
	}

	for _, entry := range entries {
		entry.UserID = recipientID
		if entry.SecretID == "" {
			result.Failed = append(result.Failed, models.EnvelopeFailure{Entry: entry, Reason: "secret id is required"})
			continue
		}
		if entry.EncryptedKey == "" || entry.Nonce == "" || entry.SenderPublicKey == "" {
			result.Failed = append(result.Failed, models.EnvelopeFailure{Entry: entry, Reason: "encrypted key, nonce and sender public key are required"})
			continue
		}

		us, reason := r.applyGrantedEnvelope(ctx, actingUserID, entry, true)
		if us == nil {
			slog.Warn("envelope re-seal entry failed",
				"secret_id", entry.SecretID, "user_id", recipientID, "reason", reason)
			result.Failed = append(result.Failed, models.EnvelopeFailure{Entry: entry, Reason: reason})
			continue
		}
		result.Succeeded = append(result.Succeeded, us)
	}

	return result, nil
}

// gateSecret checks that actingUserID may mutate envelopes of the given
// secret. It runs through q so callers can pin the gate read to the same
// transaction as the gated write. Returns an empty string when allowed, the
// denial reason otherwise.
func (r *SecretRepository) gateSecret(ctx context.Context, q querier, secretID, actingUserID string) string {
	var repoID string
	err := q.QueryRowContext(ctx, `SELECT repo_id FROM secrets WHERE id = $1`, secretID).Scan(&repoID)
	if err == sql.ErrNoRows {
		return "secret not found"
	}
	if err != nil {
		return "storage operation failed"
	}

	member, err := getMembership(ctx, q, repoID, actingUserID)
	if err != nil {
		return "storage operation failed"
	}
	if d := authz.Check(member, authz.AdminOrAbove); !d.Allowed {
		return string(d.Reason)
	}
	return ""
}

// RemoveRecipientEnvelopes revokes a user's access to a set of secrets by
// deleting their envelopes. Each secret is handled independently; the return
// value counts envelopes actually removed. Secrets the acting user may not
// administer, or where no envelope exists, are skipped.
func (r *SecretRepository) RemoveRecipientEnvelopes(ctx context.Context, actingUserID, recipientID string, secretIDs []string) (int, error) {
	removed := 0
	for _, secretID := range secretIDs {
		n, reason := r.revokeEnvelope(ctx, actingUserID, recipientID, secretID)
		if reason != "" {
			slog.Warn("envelope revocation skipped",
				"secret_id", secretID, "user_id", recipientID, "reason", reason)
			continue
		}
		removed += n
	}
	return removed, nil
}

// revokeEnvelope deletes one recipient's envelope for one secret, gating and
// deleting in the same transaction. Returns the number of rows removed, or a
// reason when the gate denies or the store fails.
func (r *SecretRepository) revokeEnvelope(ctx context.Context, actingUserID, recipientID, secretID string) (int, string) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "storage operation failed"
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if reason := r.gateSecret(ctx, tx, secretID, actingUserID); reason != "" {
		return 0, reason
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM user_secrets WHERE secret_id = $1 AND user_id = $2`,
		secretID, recipientID,
	)
	if err != nil {
		return 0, "storage operation failed"
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, "storage operation failed"
	}

	if err := tx.Commit(); err != nil {
		return 0, "storage operation failed"
	}
	return int(n), ""
}

// DeleteSecret removes a secret and, via the schema's cascade, all of its
// envelopes. The acting user's membership is re-read in the same transaction
// as the delete. Returns the deleted row, or nil when no such secret exists.
func (r *SecretRepository) DeleteSecret(ctx context.Context, secretID, actingUserID string) (*models.Secret, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	secret, err := scanSecret(tx.QueryRowContext(ctx,
		`SELECT `+secretColumns+` FROM secrets WHERE id = $1 FOR UPDATE`, secretID))
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if secret == nil {
		return nil, nil
	}

	acting, err := getMembership(ctx, tx, secret.RepoID, actingUserID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if d := authz.Check(acting, authz.AdminOrAbove); !d.Allowed {
		return nil, d.Err()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM secrets WHERE id = $1`, secretID); err != nil {
		return nil, domain.FromStore(err, "")
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.FromStore(err, "")
	}
	return secret, nil
}

// ListSecretsForRepo retrieves every secret in a repo for a specific
// requester. The requester must hold an active membership of any permission.
// Envelope fields come from a left join against the requester's user_secrets
// rows: secrets the requester holds no envelope for are still listed with nil
// envelope fields, signalling that access has not been granted.
func (r *SecretRepository) ListSecretsForRepo(ctx context.Context, repoID, requesterID string) ([]*models.SecretWithEnvelope, error) {
	member, err := getMembership(ctx, r.db, repoID, requesterID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	if d := authz.Check(member, authz.AnyActive); !d.Allowed {
		return nil, d.Err()
	}

	query := `
		SELECT s.id, s.repo_id, s.created_by, s.updated_by, s.name, s.description, s.type, s.version,
		       s.encrypted_secret, s.nonce, s.created_at, s.updated_at,
		       cu.full_name, uu.full_name,
		       us.encrypted_secret_key, us.nonce, us.sender_public_key
		FROM secrets s
		INNER JOIN users cu ON cu.id = s.created_by
		INNER JOIN users uu ON uu.id = s.updated_by
		LEFT JOIN user_secrets us ON us.secret_id = s.id AND us.user_id = $2
		WHERE s.repo_id = $1
		ORDER BY s.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, repoID, requesterID)
	if err != nil {
		return nil, domain.FromStore(err, "")
	}
	defer rows.Close()

	secrets := make([]*models.SecretWithEnvelope, 0)
	for rows.Next() {
		s := &models.SecretWithEnvelope{}
		if err := rows.Scan(
			&s.ID,
			&s.RepoID,
			&s.CreatedBy,
			&s.UpdatedBy,
			&s.Name,
			&s.Description,
			&s.Type,
			&s.Version,
			&s.EncryptedSecret,
			&s.Nonce,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.CreatedByName,
			&s.UpdatedByName,
			&s.EncryptedSecretKey,
			&s.EnvelopeNonce,
			&s.SenderPublicKey,
		); err != nil {
			return nil, domain.FromStore(err, "")
		}
		secrets = append(secrets, s)
	}
	return secrets, rows.Err()
}
