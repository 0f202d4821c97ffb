// Package models - user.go defines the User model for Secrelo accounts with email,
// full name, bcrypt password hash, and active flag.
package models

import "time"

// User represents a user account in the system
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
