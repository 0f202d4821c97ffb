// Package repos implements handlers for repo creation and listing, repo detail
// views, member management, invites, member public keys, and the per-requester
// secret listing. Permission gating for mutations happens inside the data
// layer, in the same transaction as the write; handlers only gate read-only
// views.
package repos

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secrelo/secrelo-server/internal/api/respond"
	"github.com/secrelo/secrelo-server/internal/authz"
	"github.com/secrelo/secrelo-server/internal/config"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/db/repositories"
	"github.com/secrelo/secrelo-server/internal/domain"
)

// Handlers handles repo endpoints
type Handlers struct {
	cfg          *config.Config
	repoRepo     *repositories.RepoRepository
	memberRepo   *repositories.MemberRepository
	inviteRepo   *repositories.InviteRepository
	identityRepo *repositories.IdentityRepository
	secretRepo   *repositories.SecretRepository
}

// NewHandlers creates a new repo Handlers instance
func NewHandlers(cfg *config.Config, db *sql.DB) *Handlers {
	return &Handlers{
		cfg:          cfg,
		repoRepo:     repositories.NewRepoRepository(db),
		memberRepo:   repositories.NewMemberRepository(db),
		inviteRepo:   repositories.NewInviteRepository(db),
		identityRepo: repositories.NewIdentityRepository(db),
		secretRepo:   repositories.NewSecretRepository(db),
	}
}

// currentUserID pulls the authenticated user's ID out of the request context.
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

// requireMembership gates a read-only repo view: the requester must hold a
// membership satisfying req. Mutations do NOT use this — their gates run
// inside the repository transaction.
func (h *Handlers) requireMembership(c *gin.Context, repoID, userID string, req authz.Requirement) bool {
	member, err := h.repoRepo.GetMembership(c.Request.Context(), repoID, userID)
	if err != nil {
		respond.Error(c, domain.FromStore(err, ""))
		return false
	}
	if d := authz.Check(member, req); !d.Allowed {
		respond.Error(c, d.Err())
		return false
	}
	return true
}

type createRepoRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Type        string `json:"type"`
	OwnerRole   string `json:"owner_role"`
}

// @Summary      Create a repo
// @Description  Creates a repo and its owner membership atomically; the creator is immediately an active owner.
// @Tags         Repos
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  models.RepoWithMemberCount
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /secreloapis/v1/repos [post]
// CreateRepoHandler creates a new repo with the caller as owner
// POST /secreloapis/v1/repos
func (h *Handlers) CreateRepoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req createRepoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("repo name is required"))
			return
		}

		repo := &models.Repo{
			CreatedBy:   userID,
			UpdatedBy:   userID,
			Name:        req.Name,
			Description: req.Description,
			Type:        req.Type,
		}
		created, err := h.repoRepo.CreateRepoWithOwner(c.Request.Context(), repo, req.OwnerRole)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// @Summary      List my repos
// @Description  Lists every repo where the caller holds an active membership, with member counts.
// @Tags         Repos
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.RepoWithMemberCount
// @Router       /secreloapis/v1/repos [get]
// ListMyReposHandler lists the caller's repos
// GET /secreloapis/v1/repos
func (h *Handlers) ListMyReposHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		repos, err := h.repoRepo.ListUserRepos(c.Request.Context(), userID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}

		c.JSON(http.StatusOK, gin.H{"repos": repos})
	}
}

// @Summary      Get a repo
// @Description  Returns a repo with its active member count. Requires an active membership.
// @Tags         Repos
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.RepoWithMemberCount
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Failure      404  {object}  map[string]interface{}  "Repo not found"
// @Router       /secreloapis/v1/repos/{id} [get]
// GetRepoHandler returns a single repo with member count
// GET /secreloapis/v1/repos/:id
func (h *Handlers) GetRepoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		repoID := c.Param("id")

		if !h.requireMembership(c, repoID, userID, authz.AnyActive) {
			return
		}

		repo, err := h.repoRepo.GetRepoWithMemberCount(c.Request.Context(), repoID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}
		if repo == nil {
			respond.Error(c, domain.NotFoundf("repo not found"))
			return
		}

		c.JSON(http.StatusOK, repo)
	}
}

// @Summary      Get repo details
// @Description  Returns a repo with its full member list. Requires an active membership.
// @Tags         Repos
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.RepoDetails
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Failure      404  {object}  map[string]interface{}  "Repo not found"
// @Router       /secreloapis/v1/repos/{id}/details [get]
// GetRepoDetailsHandler returns a repo with its member list
// GET /secreloapis/v1/repos/:id/details
func (h *Handlers) GetRepoDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		repoID := c.Param("id")

		if !h.requireMembership(c, repoID, userID, authz.AnyActive) {
			return
		}

		details, err := h.repoRepo.GetRepoDetails(c.Request.Context(), repoID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}
		if details == nil {
			respond.Error(c, domain.NotFoundf("repo not found"))
			return
		}

		c.JSON(http.StatusOK, details)
	}
}

// @Summary      List active member public keys
// @Description  Returns the public key of every active member so a client can seal DEK envelopes for the whole repo.
// @Tags         Repos
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.MemberPublicKey
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Router       /secreloapis/v1/repos/{id}/user-keys [get]
// GetRepoUserKeysHandler lists active member public keys for a repo
// GET /secreloapis/v1/repos/:id/user-keys
func (h *Handlers) GetRepoUserKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		repoID := c.Param("id")

		if !h.requireMembership(c, repoID, userID, authz.AnyActive) {
			return
		}

		keys, err := h.identityRepo.GetRepoPublicKeys(c.Request.Context(), repoID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}

		c.JSON(http.StatusOK, gin.H{"user_keys": keys})
	}
}

// @Summary      List repo secrets
// @Description  Lists every secret in the repo. Each entry carries the caller's sealed DEK envelope when one exists.
// @Tags         Repos
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.SecretWithEnvelope
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Router       /secreloapis/v1/repos/{id}/secrets [get]
// ListRepoSecretsHandler lists a repo's secrets for the caller
// GET /secreloapis/v1/repos/:id/secrets
func (h *Handlers) ListRepoSecretsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		repoID := c.Param("id")

		secrets, err := h.secretRepo.ListSecretsForRepo(c.Request.Context(), repoID, userID)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"secrets": secrets})
	}
}
