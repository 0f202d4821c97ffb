// Package models - audit_log.go defines the AuditLog model for recording
// security-relevant events: membership transitions, envelope grants and
// revocations, secret creation and deletion.
package models

import "time"

// AuditLog represents one recorded security-relevant action
type AuditLog struct {
	ID           string                 `json:"id" db:"id"`
	UserID       *string                `json:"user_id,omitempty" db:"user_id"` // nil for system actions
	RepoID       *string                `json:"repo_id,omitempty" db:"repo_id"`
	Action       string                 `json:"action" db:"action"` // "member.approve", "secret.create", "envelope.revoke"
	ResourceType *string                `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   *string                `json:"resource_id,omitempty" db:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"-"`
	IPAddress    *string                `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}
