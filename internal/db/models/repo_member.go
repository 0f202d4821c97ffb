// Package models - repo_member.go defines models for user-to-repo membership,
// the membership status lifecycle, and enriched views joining user details.
package models

import "time"

// Membership lifecycle states. Only an active membership confers access;
// sent, pending, and rejected rows grant nothing.
const (
	MemberStatusSent     = "sent"
	MemberStatusPending  = "pending"
	MemberStatusActive   = "active"
	MemberStatusRejected = "rejected"
)

// RepoMember represents a user's membership in a repo. The (repo_id, user_id)
// pair is unique in storage so concurrent joins cannot duplicate it.
type RepoMember struct {
	ID                string    `json:"id"`
	RepoID            string    `json:"repo_id"`
	UserID            string    `json:"user_id"`
	MemberRole        string    `json:"member_role"` // display label only
	MemberPermissions string    `json:"member_permissions"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RepoMemberWithUser includes user details for member listings
type RepoMemberWithUser struct {
	RepoMember
	UserFullName string `json:"full_name"`
	UserEmail    string `json:"email"`
}

// MemberUpdate is a partial-update request for a member row. A nil field means
// "leave unchanged"; only present fields are written.
type MemberUpdate struct {
	Permission *string `json:"permission,omitempty"`
	Role       *string `json:"role,omitempty"`
}

// IsEmpty reports whether the update would change nothing.
func (u MemberUpdate) IsEmpty() bool {
	return u.Permission == nil && u.Role == nil
}
