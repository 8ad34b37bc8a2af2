package model

import "time"

// Roles a user account can hold.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// User represents a platform account.
type User struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Country       string    `json:"country,omitempty"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	EmailToken    string    `json:"-"`
	LastActive    time.Time `json:"last_active"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
