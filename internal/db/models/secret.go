// Package models - secret.go defines the Secret model (opaque ciphertext under a
// per-secret DEK) and the per-requester listing view with an optional envelope.
package models

import "time"

// Secret represents an encrypted secret value stored for a repo. The server
// only ever sees ciphertext; EncryptedSecret and Nonce are opaque base64 text
// produced by the client.
type Secret struct {
	ID              string    `json:"id"`
	RepoID          string    `json:"repo_id"`
	CreatedBy       string    `json:"created_by"`
	UpdatedBy       string    `json:"updated_by"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Type            string    `json:"type"`
	Version         int       `json:"version"`
	EncryptedSecret string    `json:"encrypted_secret"`
	Nonce           string    `json:"nonce"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SecretWithEnvelope is a secret listed for a specific requester. The envelope
// fields come from a left join against the requester's user_secrets row and are
// nil when the requester holds no sealed key for this secret — the secret is
// still listed (metadata plus ciphertext) to signal that access has not been
// granted yet.
type SecretWithEnvelope struct {
	Secret
	CreatedByName      string  `json:"created_by_name"`
	UpdatedByName      string  `json:"updated_by_name"`
	EncryptedSecretKey *string `json:"encrypted_secret_key"`
	EnvelopeNonce      *string `json:"user_nonce"`
	SenderPublicKey    *string `json:"sender_public_key"`
}

// HasEnvelope reports whether the requester can actually decrypt this secret.
func (s *SecretWithEnvelope) HasEnvelope() bool {
	return s.EncryptedSecretKey != nil
}
