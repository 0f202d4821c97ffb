// members.go implements the membership lifecycle endpoints: listing members,
// reviewing the pending queue, and the approve/decline/update/remove
// transitions. Every transition is gated inside the repository transaction
// against the acting user's freshly read membership.
package repos

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/secrelo/secrelo-server/internal/api/respond"
	"github.com/secrelo/secrelo-server/internal/authz"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/domain"
	"github.com/secrelo/secrelo-server/internal/telemetry"
)

// @Summary      List repo members
// @Description  Lists every member of the repo with user details. Requires an active membership.
// @Tags         Members
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.RepoMemberWithUser
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Router       /secreloapis/v1/repos/{id}/members [get]
// ListMembersHandler lists a repo's members
// GET /secreloapis/v1/repos/:id/members
func (h *Handlers) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		repoID := c.Param("id")

		if !h.requireMembership(c, repoID, userID, authz.AnyActive) {
			return
		}

		members, err := h.memberRepo.ListMembers(c.Request.Context(), repoID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}

		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

// @Summary      List pending members
// @Description  Lists members awaiting approval. Requires admin or owner permission.
// @Tags         Members
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.RepoMemberWithUser
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Router       /secreloapis/v1/repos/{id}/members/pending [get]
// ListPendingMembersHandler lists members awaiting approval
// GET /secreloapis/v1/repos/:id/members/pending
func (h *Handlers) ListPendingMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		repoID := c.Param("id")

		if !h.requireMembership(c, repoID, userID, authz.AdminOrAbove) {
			return
		}

		members, err := h.memberRepo.ListPendingMembers(c.Request.Context(), repoID)
		if err != nil {
			respond.Error(c, domain.FromStore(err, ""))
			return
		}

		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

// @Summary      Approve a pending member
// @Description  Transitions a pending member to active. Requires admin or owner permission.
// @Tags         Members
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.RepoMember
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Failure      409  {object}  map[string]interface{}  "Member is not pending approval"
// @Router       /secreloapis/v1/repos/{id}/members/{memberId}/approve [post]
// ApproveMemberHandler approves a pending member
// POST /secreloapis/v1/repos/:id/members/:memberId/approve
func (h *Handlers) ApproveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		member, err := h.memberRepo.ApproveMember(c.Request.Context(), c.Param("id"), userID, c.Param("memberId"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		telemetry.MemberTransitionsTotal.WithLabelValues("approve").Inc()
		c.JSON(http.StatusOK, member)
	}
}

// @Summary      Decline a pending member
// @Description  Transitions a pending member to rejected. Requires admin or owner permission.
// @Tags         Members
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.RepoMember
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Failure      409  {object}  map[string]interface{}  "Member is not pending approval"
// @Router       /secreloapis/v1/repos/{id}/members/{memberId}/decline [post]
// DeclineMemberHandler declines a pending member
// POST /secreloapis/v1/repos/:id/members/:memberId/decline
func (h *Handlers) DeclineMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		member, err := h.memberRepo.DeclineMember(c.Request.Context(), c.Param("id"), userID, c.Param("memberId"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		telemetry.MemberTransitionsTotal.WithLabelValues("decline").Inc()
		c.JSON(http.StatusOK, member)
	}
}

// @Summary      Update a member
// @Description  Changes a member's permission and/or role label, subject to the lattice rules.
// @Tags         Members
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      200  {object}  models.RepoMember
// @Failure      400  {object}  map[string]interface{}  "Empty or invalid update"
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Router       /secreloapis/v1/repos/{id}/members/{memberId} [patch]
// UpdateMemberHandler updates a member's permission or role
// PATCH /secreloapis/v1/repos/:id/members/:memberId
func (h *Handlers) UpdateMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		var update models.MemberUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			respond.Error(c, domain.Validationf("invalid member update"))
			return
		}

		member, err := h.memberRepo.UpdateMember(c.Request.Context(), c.Param("id"), userID, c.Param("memberId"), update)
		if err != nil {
			respond.Error(c, err)
			return
		}

		telemetry.MemberTransitionsTotal.WithLabelValues("update").Inc()
		c.JSON(http.StatusOK, member)
	}
}

// @Summary      Remove a member
// @Description  Deletes a member's row. Requires admin or owner permission; admins cannot remove owners.
// @Tags         Members
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.RepoMember
// @Failure      403  {object}  map[string]interface{}  "Insufficient permission"
// @Failure      404  {object}  map[string]interface{}  "Member not found"
// @Router       /secreloapis/v1/repos/{id}/members/{memberId} [delete]
// RemoveMemberHandler removes a member from a repo
// DELETE /secreloapis/v1/repos/:id/members/:memberId
func (h *Handlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}

		member, err := h.memberRepo.RemoveMember(c.Request.Context(), c.Param("id"), userID, c.Param("memberId"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		telemetry.MemberTransitionsTotal.WithLabelValues("remove").Inc()
		c.JSON(http.StatusOK, member)
	}
}
