// Package models - user_secret.go defines the UserSecret envelope (one
// recipient's sealed copy of a secret's DEK) plus the batch input and
// partial-success result types used by envelope fan-out operations.
package models

import "time"

// UserSecret represents one recipient's sealed copy of a secret's
// data-encryption key. The (secret_id, user_id) pair is unique in storage.
type UserSecret struct {
	ID                 string    `json:"id"`
	SecretID           string    `json:"secret_id"`
	UserID             string    `json:"user_id"`
	EncryptedSecretKey string    `json:"encrypted_secret_key"`
	Nonce              string    `json:"nonce"`
	SenderPublicKey    string    `json:"sender_public_key"`
	CreatedAt          time.Time `json:"created_at"`
}

// EnvelopeEntry is one recipient's sealed DEK as submitted by a client.
type EnvelopeEntry struct {
	SecretID        string `json:"secret_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	EncryptedKey    string `json:"encrypted_key"`
	Nonce           string `json:"nonce"`
	SenderPublicKey string `json:"sender_public_key"`
}

// EnvelopeFailure records one entry that could not be applied, with the reason.
type EnvelopeFailure struct {
	Entry  EnvelopeEntry `json:"entry"`
	Reason string        `json:"reason"`
}

// EnvelopeBatchResult is the structured outcome of a best-effort fan-out:
// each entry succeeds or fails independently, and failures are reported
// rather than silently dropped.
type EnvelopeBatchResult struct {
	Succeeded []*UserSecret     `json:"succeeded"`
	Failed    []EnvelopeFailure `json:"failed"`
}

// SecretCreateResult pairs a freshly created secret with its envelope fan-out
// outcome and, when the creator sealed a copy for themselves, that envelope so
// the creator can immediately decrypt the secret they just made.
type SecretCreateResult struct {
	Secret          *Secret              `json:"secret"`
	Envelopes       *EnvelopeBatchResult `json:"envelopes"`
	CreatorEnvelope *UserSecret          `json:"user_secret"`
}
