package models

import "time"

// Purpose discriminates what a verification code authorizes.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

func (p Purpose) Valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

// VerificationArtifact is a single-use, time-boxed code stored on the account.
// Issuing a new one replaces whatever was stored before.
type VerificationArtifact struct {
	Code      string    `json:"-" bson:"code"`
	Purpose   Purpose   `json:"purpose" bson:"purpose"`
	IssuedAt  time.Time `json:"issued_at" bson:"issuedAt"`
	ExpiresAt time.Time `json:"expires_at" bson:"expiresAt"`
}

// Expired reports whether the artifact is no longer usable at now.
func (v *VerificationArtifact) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
