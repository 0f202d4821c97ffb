// Package identity creates per-user keypair envelopes. Each user gets one
// Curve25519 keypair; the private key is wrapped with XChaCha20-Poly1305 under
// a key derived from the user's password via Argon2id with a fresh random
// salt. The plaintext private key and the wrapping key exist only inside
// CreateEnvelope and are never persisted, returned, or logged — decryption
// happens exclusively in the owning client.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/box"

	"github.com/secrelo/secrelo-server/internal/db/models"
)

// Argon2id parameters. These mirror libsodium's MODERATE limits so existing
// clients derive the same wrapping key from the stored salt and cost fields.
const (
	kdfAlgorithm = "argon2id"
	kdfOps       = 3
	kdfMemoryKiB = 256 * 1024 // 256 MiB
	kdfThreads   = 1
	saltSize     = 16
)

// CreateEnvelope generates a fresh keypair for userID and seals the private
// key under a password-derived key. Any randomness or KDF failure aborts the
// whole operation; no partial envelope is ever produced.
func CreateEnvelope(userID, password string) (*models.KeyEnvelope, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	wrappingKey := argon2.IDKey([]byte(password), salt, kdfOps, kdfMemoryKiB, kdfThreads, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.NewX(wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	encryptedPrivate := aead.Seal(nil, nonce, privateKey[:], nil)

	return &models.KeyEnvelope{
		UserID:              userID,
		PublicKey:           base64.StdEncoding.EncodeToString(publicKey[:]),
		EncryptedPrivateKey: base64.StdEncoding.EncodeToString(encryptedPrivate),
		PrivateKeySalt:      base64.StdEncoding.EncodeToString(salt),
		PrivateKeyNonce:     base64.StdEncoding.EncodeToString(nonce),
		KDFAlgorithm:        kdfAlgorithm,
		KDFOps:              kdfOps,
		KDFMemory:           kdfMemoryKiB,
	}, nil
}
