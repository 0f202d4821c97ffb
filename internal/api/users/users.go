// users.go implements handlers for user registration, login, token refresh,
// and the current-user endpoint. Registration creates the account and its
// keypair envelope atomically: the client never observes a user without keys.
package users

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/secrelo/secrelo-server/internal/api/respond"
	"github.com/secrelo/secrelo-server/internal/auth"
	"github.com/secrelo/secrelo-server/internal/config"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/db/repositories"
	"github.com/secrelo/secrelo-server/internal/domain"
	"github.com/secrelo/secrelo-server/internal/identity"
)

// Handlers handles user account endpoints
type Handlers struct {
	cfg          *config.Config
	userRepo     *repositories.UserRepository
	identityRepo *repositories.IdentityRepository
}

// NewHandlers creates a new user Handlers instance
func NewHandlers(cfg *config.Config, db *sql.DB) *Handlers {
	return &Handlers{
		cfg:          cfg,
		userRepo:     repositories.NewUserRepository(db),
		identityRepo: repositories.NewIdentityRepository(db),
	}
}

type registerRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// tokenPair issues a fresh access/refresh pair for the user.
func (h *Handlers) tokenPair(userID, email string) (gin.H, error) {
	access, err := auth.GenerateAccessToken(userID, email, h.cfg.Auth.Tokens.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.GenerateRefreshToken(userID, email, h.cfg.Auth.Tokens.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return gin.H{"access_token": access, "refresh_token": refresh}, nil
}

// @Summary      Register a new user
// @Description  Creates a user account together with its keypair envelope and returns tokens.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "user, keys, tokens"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /secreloapis/v1/users/register [post]
// RegisterHandler creates a new user account
// POST /secreloapis/v1/users/register
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("full name, email and password are required"))
			return
		}

		passwordHash, err := auth.HashPassword(req.Password)
		if err != nil {
			respond.Error(c, err)
			return
		}

		userID := uuid.New().String()
		envelope, err := identity.CreateEnvelope(userID, req.Password)
		if err != nil {
			respond.Error(c, err)
			return
		}

		user := &models.User{
			ID:           userID,
			FullName:     req.FullName,
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			PasswordHash: passwordHash,
		}
		if err := h.userRepo.CreateUserWithEnvelope(c.Request.Context(), user, envelope); err != nil {
			respond.Error(c, err)
			return
		}

		tokens, err := h.tokenPair(user.ID, user.Email)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user":   user,
			"keys":   envelope,
			"tokens": tokens,
		})
	}
}

// @Summary      Log in
// @Description  Verifies credentials and returns the user, their keypair envelope, and tokens.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, keys, tokens"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Router       /secreloapis/v1/users/login [post]
// LoginHandler authenticates a user with email and password
// POST /secreloapis/v1/users/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("email and password are required"))
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			respond.Error(c, err)
			return
		}
		// Same response whether the email is unknown or the password is wrong,
		// so login cannot be used to enumerate registered emails.
		if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}

		envelope, err := h.identityRepo.GetEnvelope(c.Request.Context(), user.ID)
		if err != nil {
			respond.Error(c, err)
			return
		}

		tokens, err := h.tokenPair(user.ID, user.Email)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":   user,
			"keys":   envelope,
			"tokens": tokens,
		})
	}
}

// @Summary      Refresh tokens
// @Description  Exchanges a valid refresh token for a new access/refresh pair.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "tokens"
// @Failure      401  {object}  map[string]interface{}  "Invalid refresh token"
// @Router       /secreloapis/v1/users/refresh [post]
// RefreshHandler exchanges a refresh token for a new token pair
// POST /secreloapis/v1/users/refresh
func (h *Handlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, domain.Validationf("refresh token is required"))
			return
		}

		claims, err := auth.ValidateRefreshToken(req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			respond.Error(c, err)
			return
		}
		if user == nil || !user.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}

		tokens, err := h.tokenPair(user.ID, user.Email)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"tokens": tokens})
	}
}

// @Summary      Current user
// @Description  Returns the authenticated user and their keypair envelope.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user, keys"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /secreloapis/v1/users/me [get]
// MeHandler returns the authenticated user
// GET /secreloapis/v1/users/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := c.MustGet("user").(*models.User)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		envelope, err := h.identityRepo.GetEnvelope(c.Request.Context(), user.ID)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": user,
			"keys": envelope,
		})
	}
}
