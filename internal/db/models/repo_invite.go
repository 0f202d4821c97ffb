// Package models - repo_invite.go defines the single-use RepoInvite offer and
// the enriched detail view a client uses to render a join decision.
package models

import "time"

// Invite states. Consumption transitions pending → accepted exactly once.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
)

// RepoInvite represents a pending offer of membership in a repo
type RepoInvite struct {
	ID                string    `json:"id"`
	RepoID            string    `json:"repo_id"`
	InviteeID         string    `json:"invitee_id"`
	InviteeName       string    `json:"invitee_name"`
	MemberRole        string    `json:"member_role"`
	MemberPermissions string    `json:"member_permissions"`
	Status            string    `json:"status"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsExpired reports whether the invite's expiry has passed.
func (i *RepoInvite) IsExpired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// RepoInviteDetails joins an invite with repo metadata and join-eligibility
// flags so the invitee's client can render the accept/decline decision.
type RepoInviteDetails struct {
	RepoInvite
	RepoName        string `json:"repo_name"`
	RepoDescription string `json:"repo_description"`
	RepoType        string `json:"repo_type"`
	MemberCount     int    `json:"member_count"`
	UserIsMember    bool   `json:"user_is_member"`
}
