// audit.go provides Gin middleware that records authenticated write operations to the audit
// log, with optional shipping to external audit destinations.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/secrelo/secrelo-server/internal/audit"
	"github.com/secrelo/secrelo-server/internal/config"
	"github.com/secrelo/secrelo-server/internal/db/models"
	"github.com/secrelo/secrelo-server/internal/db/repositories"
	"github.com/secrelo/secrelo-server/internal/safego"
)

// AuditMiddleware logs authenticated actions to the database only
func AuditMiddleware(auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return AuditMiddlewareWithShipper(auditRepo, nil, nil)
}

// AuditMiddlewareWithShipper logs authenticated actions and ships to external destinations
func AuditMiddlewareWithShipper(auditRepo *repositories.AuditRepository, shipper audit.Shipper, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request first
		c.Next()

		if c.Request.Method == "OPTIONS" {
			return
		}

		logReadOps := auditCfg != nil && auditCfg.LogReadOperations
		logFailedReqs := auditCfg != nil && auditCfg.LogFailedRequests

		isReadOp := c.Request.Method == "GET"
		isFailed := c.Writer.Status() >= 400

		// Default behavior: only log successful write operations
		if auditCfg == nil {
			if isReadOp || isFailed {
				return
			}
		} else {
			if isReadOp && !logReadOps {
				return
			}
			if isFailed && !logFailedReqs && isReadOp {
				return
			}
		}

		userID, _ := c.Get("user_id")
		authMethod, _ := c.Get("auth_method")

		action := c.Request.Method + " " + c.Request.URL.Path
		ipAddress := c.ClientIP()
		path := c.Request.URL.Path
		statusCode := c.Writer.Status()

		auditLog := &models.AuditLog{
			Action:    action,
			IPAddress: &ipAddress,
			CreatedAt: time.Now(),
		}

		var userIDStr string
		if uid, ok := userID.(string); ok && uid != "" {
			userIDStr = uid
			auditLog.UserID = &userIDStr
		}

		// Repo-scoped routes carry the repo ID as the :id path parameter.
		var repoIDStr string
		if strings.Contains(path, "/repos/") {
			if rid := c.Param("id"); rid != "" {
				repoIDStr = rid
				auditLog.RepoID = &repoIDStr
			}
		}

		var resourceType string
		switch {
		case strings.Contains(path, "/secrets"):
			resourceType = "secret"
		case strings.Contains(path, "/invites"):
			resourceType = "invite"
		case strings.Contains(path, "/members"):
			resourceType = "member"
		case strings.Contains(path, "/repos"):
			resourceType = "repo"
		case strings.Contains(path, "/users"):
			resourceType = "user"
		}
		if resourceType != "" {
			auditLog.ResourceType = &resourceType
		}

		metadata := map[string]interface{}{
			"status_code": statusCode,
		}
		if authMethod != nil {
			metadata["auth_method"] = authMethod
		}
		auditLog.Metadata = metadata

		// Async log creation (non-blocking)
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if auditRepo != nil {
				if err := auditRepo.CreateAuditLog(ctx, auditLog); err != nil {
					slog.Error("failed to create audit log", "error", err)
				}
			}

			if shipper != nil {
				authMethodStr, _ := authMethod.(string)
				entry := &audit.LogEntry{
					Timestamp:    auditLog.CreatedAt,
					Action:       auditLog.Action,
					UserID:       userIDStr,
					RepoID:       repoIDStr,
					ResourceType: resourceType,
					IPAddress:    ipAddress,
					AuthMethod:   authMethodStr,
					StatusCode:   statusCode,
					Metadata:     metadata,
				}
				if err := shipper.Ship(ctx, entry); err != nil {
					slog.Error("failed to ship audit log", "error", err)
				}
			}
		})
	}
}
