package model

import "time"

// User represents a user in the database.
// Opaque tokens are stored as SHA-256 digests, never in plaintext.
type User struct {
	ID                     int64
	Email                  string
	FirstName              string
	LastName               string
	PasswordHash           string
	IsAdmin                bool
	EmailVerified          bool
	VerificationTokenHash  *string
	PasswordResetTokenHash *string
	PasswordResetExpiry    *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	FirstName       string `json:"firstName" validate:"required,personname,max=100"`
	LastName        string `json:"lastName" validate:"required,personname,max=100"`
}

// LoginRequest is shared by the customer and admin login endpoints.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest represents an authenticated password change.
type ChangePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required,strongpassword"`
	ConfirmNewPassword string `json:"confirmNewPassword" validate:"required,eqfield=NewPassword"`
}

// ForgotPasswordRequest starts the password reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes the password reset flow.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,strongpassword"`
}

// AuthResponse represents a login response with a session token and user info.
type AuthResponse struct {
	Status int          `json:"status"`
	Token  string       `json:"token"`
	User   UserResponse `json:"user"`
}

// UserResponse represents user data safe for API responses (no sensitive fields).
type UserResponse struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	IsAdmin       bool      `json:"isAdmin"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ToResponse strips the credential fields from u.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		IsAdmin:       u.IsAdmin,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}
