// Package secrets implements handlers for secret creation and deletion and for
// the per-recipient envelope grant, re-seal, and revocation endpoints. The
// server never sees plaintext: secret values and DEK envelopes arrive sealed
// by the client and are stored as opaque text.
package secrets

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secrelo/secrelo-server/internal/api/respond"
	"github.com/secrelo/secrelo-server/internal/config"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/db/repositories"
	"github.com/secrelo/secrelo-server/internal/domain"
	"github.com/secrelo/secrelo-server/internal/telemetry"
)

// Handlers handles secret and envelope endpoints
type Handlers struct {
	cfg        *config.Config
	secretRepo *repositories.SecretRepository
}

// NewHandlers creates a new secret Handlers instance
func NewHandlers(cfg *config.Config, db *sql.DB) *Handlers {
	return &Handlers{
		cfg:        cfg,
		secretRepo: repositories.NewSecretRepository(db),
	}
}

func currentUserID(c *gin.Context) (string, bool) {
	uid, ok := c.Get("user_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	id, ok := uid.(string)
	if !ok || id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return id, true
}

// countFanout records per-entry fan-out outcomes.
func countFanout(result *models.EnvelopeBatchResult) {
	if result == nil {
		return
	}
	telemetry.EnvelopeFanoutEntriesTotal.WithLabelValues("succeeded").Add(float64(len(result.Succeeded)))
	telemetry.EnvelopeFanoutEntriesTotal.WithLabelValues("failed").Add(float64(len(result.Failed)))
}

type createSecretRequest struct {
	RepoID          string                 `json:"repo_id" binding:"required"`
	Name            string                 `json:"name" binding:"required"`
	Description     string                 `json:"description"`
	Type            string                 `json:"type"`
	EncryptedSecret string                 `json:"encrypted_secret" binding:"required"`
	Nonce           string                 `json:"nonce" binding:"required"`
	UserSecrets     []models.EnvelopeEntry `json:"user_secrets"`
}

// @Summary      Create a secret
// @Description  Stores a client-encrypted secret and fans out its sealed DEK envelopes to the listed recipients. Envelope entries succeed or fail independently.
// @Tags         Secrets
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  models.SecretCreateResult
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Router       /secreloapis/v1/secrets [post]
// CreateSecretHandler stores a new secret with envelope fan-out
// POST /secreloapis/v1/secrets
func (h *Handlers) CreateSecretHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req createSecretRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("repo_id, name, encrypted_secret and nonce are required"))
			return
		}

		secret := &models.Secret{
			RepoID:          req.RepoID,
			CreatedBy:       userID,
			Name:            req.Name,
			Description:     req.Description,
			Type:            req.Type,
			EncryptedSecret: req.EncryptedSecret,
			Nonce:           req.Nonce,
		}
		result, err := h.secretRepo.CreateSecret(c.Request.Context(), secret, req.UserSecrets)
		if err != nil {
			respond.Error(c, err)
			return
		}

		telemetry.SecretsCreatedTotal.Inc()
		countFanout(result.Envelopes)
		c.JSON(http.StatusCreated, result)
	}
}

// @Summary      Delete a secret
// @Description  Deletes a secret; its envelopes cascade away with it. Requires admin or owner permission in the secret's repo.
// @Tags         Secrets
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.Secret
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Failure      404  {object}  map[string]interface{}  "Secret not found"
// @Router       /secreloapis/v1/secrets/{id} [delete]
// DeleteSecretHandler deletes a secret and its envelopes
// DELETE /secreloapis/v1/secrets/:id
func (h *Handlers) DeleteSecretHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		secret, err := h.secretRepo.DeleteSecret(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if secret == nil {
			respond.Error(c, domain.NotFoundf("secret not found"))
			return
		}

		c.JSON(http.StatusOK, secret)
	}
}

type envelopeBatchRequest struct {
	UserSecrets []models.EnvelopeEntry `json:"user_secrets" binding:"required"`
}

// @Summary      Grant secret access to a user
// @Description  Stores sealed DEK envelopes giving the user access to existing secrets. Entries succeed or fail independently; an existing envelope is a per-entry conflict.
// @Tags         Secrets
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.EnvelopeBatchResult
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /secreloapis/v1/secrets/users/{userId}/keys [post]
// AddUserEnvelopesHandler grants a user envelopes for existing secrets
// POST /secreloapis/v1/secrets/users/:userId/keys
func (h *Handlers) AddUserEnvelopesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req envelopeBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("user_secrets entries are required"))
			return
		}

		result, err := h.secretRepo.AddRecipientEnvelopes(c.Request.Context(), userID, c.Param("userId"), req.UserSecrets)
		if err != nil {
			respond.Error(c, err)
			return
		}

		countFanout(result)
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Re-seal secret envelopes for a user
// @Description  Replaces the user's envelopes with freshly sealed keys after a client-driven DEK rotation. Existing envelopes are overwritten, missing ones created.
// @Tags         Secrets
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.EnvelopeBatchResult
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /secreloapis/v1/secrets/users/{userId}/keys [put]
// ReplaceUserEnvelopesHandler re-seals a user's envelopes after DEK rotation
// PUT /secreloapis/v1/secrets/users/:userId/keys
func (h *Handlers) ReplaceUserEnvelopesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req envelopeBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("user_secrets entries are required"))
			return
		}

		result, err := h.secretRepo.ReplaceRecipientEnvelopes(c.Request.Context(), userID, c.Param("userId"), req.UserSecrets)
		if err != nil {
			respond.Error(c, err)
			return
		}

		countFanout(result)
		c.JSON(http.StatusOK, result)
	}
}

type removeEnvelopesRequest struct {
	SecretIDs []string `json:"secret_ids" binding:"required"`
}

// @Summary      Revoke secret access from a user
// @Description  Deletes the user's envelopes for the given secrets. Per-secret failures are skipped; the response counts envelopes actually removed.
// @Tags         Secrets
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "removed count"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /secreloapis/v1/secrets/users/{userId}/keys [delete]
// RemoveUserEnvelopesHandler revokes a user's envelopes for the given secrets
// DELETE /secreloapis/v1/secrets/users/:userId/keys
func (h *Handlers) RemoveUserEnvelopesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req removeEnvelopesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("secret_ids are required"))
			return
		}

		removed, err := h.secretRepo.RemoveRecipientEnvelopes(c.Request.Context(), userID, c.Param("userId"), req.SecretIDs)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}
