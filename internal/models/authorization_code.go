package models

import "time"

// AuthorizationCode is a single-use code minted by the authorize endpoint
// (RFC 6749 §4.1). Codes live at most ten minutes, are stored only as a
// SHA-256 hash, and share a GrantID with every token generation they seed.
type AuthorizationCode struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	// Code storage: SHA-256 hash of the plaintext, plus a prefix for audit
	// display. The plaintext carries 256 bits of entropy.
	CodeHash   string `gorm:"uniqueIndex;not null"`
	CodePrefix string `gorm:"index;not null;size:8"`

	// GrantID ties this code to the token pairs it will produce, so the whole
	// consent can be revoked as one unit.
	GrantID  string `gorm:"not null;index;size:36"`
	ClientID string `gorm:"not null;index"`
	UserID   string `gorm:"not null;index"`

	// The exact redirect_uri presented at /oauth/authorize; re-validated
	// verbatim at exchange.
	RedirectURI string `gorm:"not null"`
	Scopes      string `gorm:"not null"` // space-separated

	// PKCE (RFC 7636). Only the S256 method is accepted.
	CodeChallenge       string `gorm:"default:''"`
	CodeChallengeMethod string `gorm:"default:''"`

	ExpiresAt time.Time
	// ConsumedAt transitions nil -> set exactly once, via a conditional
	// update. A second consumption attempt is treated as code interception.
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

func (a *AuthorizationCode) IsConsumed() bool {
	return a.ConsumedAt != nil
}

func (AuthorizationCode) TableName() string {
	return "authorization_codes"
}
