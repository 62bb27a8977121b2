package models

import (
	"strings"
	"time"
)

// Token pair status values. A pair is "active" until it is rotated away;
// the rotated row remains as a replay tripwire until its grant is revoked,
// at which point every row sharing the GrantID is deleted.
const (
	TokenStatusActive  = "active"
	TokenStatusRotated = "rotated"
)

// Opaque token string layout: prefix + 8-char lookup id + secret part.
// The lookup id is persisted in plaintext for O(1) retrieval; the full token
// is verified against a salted PBKDF2 hash.
const (
	AccessTokenPrefix  = "sga_"
	RefreshTokenPrefix = "sgr_"
	TokenLookupLength  = 8
)

// TokenPair is one generation of access+refresh credentials under a grant.
// Refresh rotates the pair wholesale: the presented pair is claimed and a
// successor row is created with RotatedFrom pointing back at it.
type TokenPair struct {
	ID      string `gorm:"primaryKey;size:36"`
	GrantID string `gorm:"not null;index;size:36"`
	Status  string `gorm:"not null;default:'active';index"`

	UserID   string `gorm:"not null;index"`
	ClientID string `gorm:"not null;index"`
	Scopes   string `gorm:"not null"` // space-separated; always subset of the grant

	// Access token: hash + salt + lookup id + displayable suffix. The
	// plaintext lives only in the in-memory fields below, populated at
	// issuance and never persisted.
	AccessTokenHash   string `gorm:"uniqueIndex;not null"`
	AccessTokenSalt   string `gorm:"not null"`
	AccessTokenLookup string `gorm:"index;not null;size:8"`
	AccessTokenLast4  string `gorm:"not null;size:4"`

	RefreshTokenHash   string `gorm:"uniqueIndex;not null"`
	RefreshTokenSalt   string `gorm:"not null"`
	RefreshTokenLookup string `gorm:"index;not null;size:8"`
	RefreshTokenLast4  string `gorm:"not null;size:4"`

	// In-memory only; returned to the client once at issuance.
	AccessToken  string `gorm:"-"`
	RefreshToken string `gorm:"-"`

	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	LastActiveAt     *time.Time `gorm:"index"`

	// RotatedFrom links to the predecessor pair's ID, forming the rotation
	// chain for a grant. Empty for the first generation.
	RotatedFrom string `gorm:"index;size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *TokenPair) IsActive() bool {
	return t.Status == TokenStatusActive
}

func (t *TokenPair) IsRotated() bool {
	return t.Status == TokenStatusRotated
}

func (t *TokenPair) AccessExpired() bool {
	return time.Now().After(t.AccessExpiresAt)
}

func (t *TokenPair) RefreshExpired() bool {
	return time.Now().After(t.RefreshExpiresAt)
}

func (TokenPair) TableName() string {
	return "token_pairs"
}

// TokenLookupID extracts the plaintext lookup id embedded in an opaque token
// string, returning "" when the token is malformed or carries the wrong
// prefix.
func TokenLookupID(token, prefix string) string {
	if !strings.HasPrefix(token, prefix) {
		return ""
	}
	rest := token[len(prefix):]
	if len(rest) <= TokenLookupLength {
		return ""
	}
	return rest[:TokenLookupLength]
}
