package models

import (
	"database/sql/driver"
	"encoding/base32"
	"encoding/json"
	"errors"
	"time"

	"github.com/scribehub/scribegate/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Client type constants. A public client carries no secret and must use PKCE
// on every authorization request.
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// Base32 characters, lowercased, no padding. Credential strings use this
// alphabet behind a greppable prefix.
const lowerBase32Chars = "abcdefghijklmnopqrstuvwxyz234567"

var base32Lower = base32.NewEncoding(lowerBase32Chars).WithPadding(base32.NoPadding)

// Client is a registered OAuth application. Clients are soft-deleted so that
// live grants never dangle on a missing registration row.
type Client struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ClientID     string `gorm:"uniqueIndex;not null"`
	ClientSecret string `gorm:"default:''"` // bcrypt hash; empty for public clients
	Name         string `gorm:"not null"`
	Description  string `gorm:"type:text"`

	// Owning team and the developer who registered the client.
	TeamID    string `gorm:"not null;index"`
	CreatedBy string `gorm:"not null"`

	RedirectURIs  StringArray `gorm:"type:json"` // exact-match only
	ScopesAllowed string      `gorm:"not null"`  // space-separated scopes
	Published     bool        `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// IsPublic reports whether the client has no secret and therefore must prove
// possession with PKCE instead.
func (c *Client) IsPublic() bool {
	return c.ClientSecret == ""
}

// Type returns the RFC 6749 client type string.
func (c *Client) Type() string {
	if c.IsPublic() {
		return ClientTypePublic
	}
	return ClientTypeConfidential
}

// GenerateClientSecret creates a fresh secret, stores its bcrypt hash on the
// receiver, and returns the plaintext. The plaintext is shown exactly once.
func (c *Client) GenerateClientSecret() (string, error) {
	rBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", err
	}
	// Prefix makes leaked secrets easy for code scanners to spot.
	secret := "sgs_" + base32Lower.EncodeToString(rBytes)

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	c.ClientSecret = string(hashed)
	return secret, nil
}

// ValidateClientSecret compares a presented secret against the stored bcrypt
// hash. bcrypt comparison is constant-time.
func (c *Client) ValidateClientSecret(secret []byte) bool {
	if c.IsPublic() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.ClientSecret), secret) == nil
}

// HasRedirectURI reports whether uri exactly matches a registered redirect
// URI. No prefix or wildcard matching: partial matching is the classic
// open-redirect vector.
func (c *Client) HasRedirectURI(uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// StringArray stores []string as a JSON column.
type StringArray []string

// Scan implements sql.Scanner.
func (s *StringArray) Scan(value any) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return errors.New("failed to unmarshal JSON value")
		}
	}
	return json.Unmarshal(bytes, s)
}

// Value implements driver.Valuer.
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

func (Client) TableName() string {
	return "oauth_clients"
}
