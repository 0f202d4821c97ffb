// invites.go implements the invite endpoints. Invites are single-use: creation
// is gated on the inviter's membership inside the repository transaction, and
// acceptance consumes the invite and creates the membership atomically, with
// the new member's initial status decided by the configured join policy.
package repos

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/secrelo/secrelo-server/internal/api/respond"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
	"github.com/secrelo/secrelo-server/internal/telemetry"
)

type createInviteRequest struct {
	InviteeID         string `json:"invitee_id" binding:"required"`
	InviteeName       string `json:"invitee_name"`
	MemberRole        string `json:"member_role"`
	MemberPermissions string `json:"member_permissions" binding:"required"`
}

// @Summary      Invite a user to a repo
// @Description  Creates a pending single-use invite. Requires admin or owner permission.
// @Tags         Invites
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  models.RepoInvite
// @Failure      400  {object}  map[string]interface{}  "Invalid permission"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Failure      409  {object}  map[string]interface{}  "User is already a member"
// @Router       /secreloapis/v1/repos/{id}/invites [post]
// CreateInviteHandler invites a user to a repo
// POST /secreloapis/v1/repos/:id/invites
func (h *Handlers) CreateInviteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var req createInviteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("invitee_id and member_permissions are required"))
			return
		}

		invite := &models.RepoInvite{
			RepoID:            c.Param("id"),
			InviteeID:         req.InviteeID,
			InviteeName:       req.InviteeName,
			MemberRole:        req.MemberRole,
			MemberPermissions: req.MemberPermissions,
			ExpiresAt:         time.Now().Add(h.cfg.Auth.Membership.InviteTTL),
		}
		created, err := h.inviteRepo.CreateInvite(c.Request.Context(), invite, userID)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, created)
	}
}

// @Summary      List my invites
// @Description  Lists the caller's pending invites, newest first.
// @Tags         Invites
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.RepoInvite
// @Router       /secreloapis/v1/invites [get]
// ListMyInvitesHandler lists the caller's pending invites
// GET /secreloapis/v1/invites
func (h *Handlers) ListMyInvitesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		invites, err := h.inviteRepo.ListUserInvites(c.Request.Context(), userID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}

		c.JSON(http.StatusOK, gin.H{"invites": invites})
	}
}

// @Summary      Get invite details
// @Description  Returns an invite joined with repo metadata so the invitee can decide. Only the invitee can see it.
// @Tags         Invites
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.RepoInviteDetails
// @Failure      404  {object}  map[string]interface{}  "Invite not found"
// @Router       /secreloapis/v1/invites/{inviteId} [get]
// GetInviteDetailsHandler returns an invite with repo context
// GET /secreloapis/v1/invites/:inviteId
func (h *Handlers) GetInviteDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		details, err := h.inviteRepo.GetInviteDetails(c.Request.Context(), c.Param("inviteId"), userID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}
		if details == nil {
			respond.Error(c, domain.NotFoundf("invite not found"))
			return
		}

		c.JSON(http.StatusOK, details)
	}
}

type acceptInviteRequest struct {
	MemberRole string `json:"member_role"`
}

// @Summary      Accept an invite
// @Description  Consumes a pending invite and creates the membership. The caller may pick their own role label in the body; it defaults to the invite's. The initial status follows the join policy: active under auto, pending under approval.
// @Tags         Invites
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.RepoMember
// @Failure      404  {object}  map[string]interface{}  "Invite not found"
// @Failure      409  {object}  map[string]interface{}  "Invite already processed or expired"
// @Router       /secreloapis/v1/invites/{inviteId}/accept [post]
// AcceptInviteHandler consumes an invite and creates a membership
// POST /secreloapis/v1/invites/:inviteId/accept
func (h *Handlers) AcceptInviteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		// The body is optional: an absent or empty member_role falls back to
		// the role recorded on the invite.
		var req acceptInviteRequest
		if c.Request.Body != nil && c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respond.Error(c, domain.Validationf("invalid accept request"))
				return
			}
		}

		initialStatus := h.cfg.Auth.Membership.InitialMemberStatus()
		member, err := h.inviteRepo.AcceptInvite(c.Request.Context(), c.Param("inviteId"), userID, req.MemberRole, initialStatus)
		if err != nil {
			respond.Error(c, err)
			return
		}

		telemetry.InviteAcceptancesTotal.Inc()
		c.JSON(http.StatusOK, member)
	}
}
