package model

import "time"

// UserRole distinguishes participants (exam takers) from teachers (authors).
type UserRole string

const (
	RoleParticipant UserRole = "participant"
	RoleTeacher     UserRole = "teacher"
)

// User represents an account in the platform.
type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// LoginRequest is the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}
