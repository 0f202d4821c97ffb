// Package models - repo.go defines the Repo model and enriched views that
// include a live member count.
package models

import "time"

// Repo represents a secret-sharing repository
type Repo struct {
	ID          string    `json:"id"`
	CreatedBy   string    `json:"created_by"`
	UpdatedBy   string    `json:"updated_by"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RepoWithMemberCount is a repo joined with its current member count
type RepoWithMemberCount struct {
	Repo
	MemberCount int `json:"member_count"`
}

// RepoDetails bundles a repo with its full member list for detail views
type RepoDetails struct {
	Repo    *Repo                 `json:"repo"`
	Members []*RepoMemberWithUser `json:"members"`
}
