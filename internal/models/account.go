package models

import (
	"strings"
	"time"
)

// Account is the authoritative credential record.
type Account struct {
	ID              string     `json:"id" bson:"_id"`
	Email           string     `json:"email" bson:"email"`
	IdentityKey     string     `json:"-" bson:"identityKey"`
	PasswordHash    string     `json:"-" bson:"passwordHash"` // не отдаём наружу
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty" bson:"emailVerifiedAt,omitempty"`

	// текущий код подтверждения/сброса, не больше одного
	Verification *VerificationArtifact `json:"-" bson:"verification,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" bson:"updatedAt"`
}

// NormalizeIdentity returns the lookup key for an email address.
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}
