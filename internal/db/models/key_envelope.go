// Package models - key_envelope.go defines the KeyEnvelope model: one asymmetric
// keypair per user, with the private key stored only as ciphertext under a
// password-derived wrapping key. All byte fields are base64 text.
package models

import "time"

// KeyEnvelope represents a user's stored keypair envelope. The private key is
// encrypted client-decryptable only: the server never holds it in plaintext.
type KeyEnvelope struct {
	UserID              string    `json:"user_id"`
	PublicKey           string    `json:"public_key"`
	EncryptedPrivateKey string    `json:"encrypted_private_key"`
	PrivateKeySalt      string    `json:"private_key_salt"`
	PrivateKeyNonce     string    `json:"private_key_nonce"`
	KDFAlgorithm        string    `json:"kdf_alg"`
	KDFOps              int       `json:"kdf_ops"`
	KDFMemory           int       `json:"kdf_mem"`
	CreatedAt           time.Time `json:"created_at"`
}

// MemberPublicKey pairs an active repo member with their public key so a
// client can seal a DEK for every current member.
type MemberPublicKey struct {
	UserID    string `json:"user_id"`
	PublicKey string `json:"public_key"`
}
