// Package api wires together all HTTP routes for the Secrelo server.
//
// Route grouping philosophy:
//   - /secreloapis/v1/users/register and /login are public but sit behind the
//     stricter auth rate limiter, since they are the credential-guessing
//     surface.
//   - Everything else under /secreloapis/v1 requires a bearer token. Repo-level
//     permission checks do NOT happen here: mutating operations re-read the
//     acting user's membership inside the same database transaction as the
//     write, so a concurrent demotion can never slip between check and use.
//   - Secret and envelope mutations carry an additional write rate limiter on
//     top of the general one.
package api

import (
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/secrelo/secrelo-server/internal/api/repos"
	"github.com/secrelo/secrelo-server/internal/api/secrets"
	"github.com/secrelo/secrelo-server/internal/api/users"
	"github.com/secrelo/secrelo-server/internal/audit"
	"github.com/secrelo/secrelo-server/internal/config"
	"github.com/secrelo/secrelo-server/internal/db/repositories"
	"github.com/secrelo/secrelo-server/internal/middleware"
)

// BackgroundServices holds references to background resources that must be
// stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	auditShipper audit.Shipper
}

// Shutdown stops all background goroutines and flushes the audit shipper. It
// should be called after the HTTP server has been shut down so that in-flight
// requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Error("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// buildAuditShipper converts the configured shipper list into a MultiShipper.
// Returns a nil interface value when audit shipping is disabled or nothing is
// configured; returning the concrete *MultiShipper type here would hand the
// middleware a non-nil interface wrapping a nil pointer, defeating its guard.
func buildAuditShipper(cfg *config.Config) audit.Shipper {
	if !cfg.Audit.Enabled || len(cfg.Audit.Shippers) == 0 {
		return nil
	}

	shipperConfigs := make([]audit.ShipperConfig, 0, len(cfg.Audit.Shippers))
	for _, sc := range cfg.Audit.Shippers {
		c := audit.ShipperConfig{Enabled: sc.Enabled, Type: sc.Type}
		if sc.Syslog != nil {
			c.Syslog = &audit.SyslogConfig{
				Network:  sc.Syslog.Network,
				Address:  sc.Syslog.Address,
				Tag:      sc.Syslog.Tag,
				Facility: sc.Syslog.Facility,
			}
		}
		if sc.Webhook != nil {
			c.Webhook = &audit.WebhookConfig{
				URL:           sc.Webhook.URL,
				Headers:       sc.Webhook.Headers,
				Timeout:       time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
				BatchSize:     sc.Webhook.BatchSize,
				FlushInterval: time.Duration(sc.Webhook.FlushInterval) * time.Second,
			}
		}
		if sc.File != nil {
			c.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		shipperConfigs = append(shipperConfigs, c)
	}

	shipper, err := audit.NewMultiShipper(shipperConfigs)
	if err != nil {
		log.Fatalf("Failed to initialize audit shippers: %v", err)
	}
	return shipper
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories used directly by middleware
	userRepo := repositories.NewUserRepository(db)

	// Wrap *sql.DB with sqlx for the audit repository
	sqlxDB := sqlx.NewDb(db, "postgres")
	auditRepo := repositories.NewAuditRepository(sqlxDB)

	auditShipper := buildAuditShipper(cfg)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	userHandlers := users.NewHandlers(cfg, db)
	repoHandlers := repos.NewHandlers(cfg, db)
	secretHandlers := secrets.NewHandlers(cfg, db)

	// Initialize rate limiters
	authRateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	writeRateLimiter := middleware.NewRateLimiter(middleware.SecretWriteRateLimitConfig())

	v1 := router.Group("/secreloapis/v1")
	{
		// Public credential endpoints (no auth required, stricter rate limit)
		authGroup := v1.Group("/users")
		authGroup.Use(middleware.RateLimitMiddleware(authRateLimiter))
		{
			authGroup.POST("/register", userHandlers.RegisterHandler())
			authGroup.POST("/login", userHandlers.LoginHandler())
			authGroup.POST("/refresh", userHandlers.RefreshHandler())
		}

		// Authenticated endpoints
		authenticated := v1.Group("")
		authenticated.Use(middleware.AuthMiddleware(userRepo))
		authenticated.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		authenticated.Use(middleware.AuditMiddlewareWithShipper(auditRepo, auditShipper, &cfg.Audit))
		{
			authenticated.GET("/users/me", userHandlers.MeHandler())

			// Repos
			reposGroup := authenticated.Group("/repos")
			{
				reposGroup.POST("", repoHandlers.CreateRepoHandler())
				reposGroup.GET("", repoHandlers.ListMyReposHandler())
				reposGroup.GET("/:id", repoHandlers.GetRepoHandler())
				reposGroup.GET("/:id/details", repoHandlers.GetRepoDetailsHandler())
				reposGroup.GET("/:id/user-keys", repoHandlers.GetRepoUserKeysHandler())
				reposGroup.GET("/:id/secrets", repoHandlers.ListRepoSecretsHandler())

				// Invite creation lives under the repo it belongs to
				reposGroup.POST("/:id/invites", repoHandlers.CreateInviteHandler())

				// Membership lifecycle
				reposGroup.GET("/:id/members", repoHandlers.ListMembersHandler())
				reposGroup.GET("/:id/members/pending", repoHandlers.ListPendingMembersHandler())
				reposGroup.POST("/:id/members/:memberId/approve", repoHandlers.ApproveMemberHandler())
				reposGroup.POST("/:id/members/:memberId/decline", repoHandlers.DeclineMemberHandler())
				reposGroup.PATCH("/:id/members/:memberId", repoHandlers.UpdateMemberHandler())
				reposGroup.DELETE("/:id/members/:memberId", repoHandlers.RemoveMemberHandler())
			}

			// Invitee-facing invite endpoints
			invitesGroup := authenticated.Group("/invites")
			{
				invitesGroup.GET("", repoHandlers.ListMyInvitesHandler())
				invitesGroup.GET("/:inviteId", repoHandlers.GetInviteDetailsHandler())
				invitesGroup.POST("/:inviteId/accept", repoHandlers.AcceptInviteHandler())
			}

			// Secrets and envelopes; mutations get the stricter write limiter
			secretsGroup := authenticated.Group("/secrets")
			{
				secretsGroup.POST("",
					middleware.RateLimitMiddleware(writeRateLimiter),
					secretHandlers.CreateSecretHandler())
				secretsGroup.DELETE("/:id",
					middleware.RateLimitMiddleware(writeRateLimiter),
					secretHandlers.DeleteSecretHandler())
				secretsGroup.POST("/users/:userId/keys",
					middleware.RateLimitMiddleware(writeRateLimiter),
					secretHandlers.AddUserEnvelopesHandler())
				secretsGroup.PUT("/users/:userId/keys",
					middleware.RateLimitMiddleware(writeRateLimiter),
					secretHandlers.ReplaceUserEnvelopesHandler())
				secretsGroup.DELETE("/users/:userId/keys",
					middleware.RateLimitMiddleware(writeRateLimiter),
					secretHandlers.RemoveUserEnvelopesHandler())
			}
		}
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{authRateLimiter, generalRateLimiter, writeRateLimiter},
		auditShipper: auditShipper,
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request; the output shape (json or
// text) follows the global handler configured in telemetry.SetupLogger.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
