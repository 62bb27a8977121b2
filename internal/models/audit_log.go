package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of audit event.
type EventType string

const (
	// Authorization code flow events
	EventAuthorizationCodeIssued   EventType = "AUTHORIZATION_CODE_ISSUED"
	EventAuthorizationCodeConsumed EventType = "AUTHORIZATION_CODE_CONSUMED"
	EventAuthorizationDenied       EventType = "AUTHORIZATION_DENIED"

	// Token events
	EventTokenPairIssued  EventType = "TOKEN_PAIR_ISSUED"
	EventTokenPairRotated EventType = "TOKEN_PAIR_ROTATED"
	EventTokenRevoked     EventType = "TOKEN_REVOKED"

	// Grant events
	EventGrantRevoked   EventType = "GRANT_REVOKED"
	EventReplayDetected EventType = "REPLAY_DETECTED"

	// Client registry events
	EventClientCreated        EventType = "CLIENT_CREATED"
	EventClientUpdated        EventType = "CLIENT_UPDATED"
	EventClientDeleted        EventType = "CLIENT_DELETED"
	EventClientSecretRotated  EventType = "CLIENT_SECRET_ROTATED" //nolint:gosec // event name, not a credential
	EventClientAuthFailed     EventType = "CLIENT_AUTH_FAILED"
	EventSuspiciousActivity   EventType = "SUSPICIOUS_ACTIVITY"
	EventRateLimitExceeded    EventType = "RATE_LIMIT_EXCEEDED"
	EventTokenValidationError EventType = "TOKEN_VALIDATION_ERROR"
)

// EventSeverity grades an audit event.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "INFO"
	SeverityWarning  EventSeverity = "WARNING"
	SeverityError    EventSeverity = "ERROR"
	SeverityCritical EventSeverity = "CRITICAL"
)

// ResourceType is the kind of record an audit event refers to.
type ResourceType string

const (
	ResourceClient ResourceType = "CLIENT"
	ResourceCode   ResourceType = "AUTHORIZATION_CODE"
	ResourceToken  ResourceType = "TOKEN"
	ResourceGrant  ResourceType = "GRANT"
)

// AuditDetails stores event-specific fields as a JSON column.
type AuditDetails map[string]any

// Value implements driver.Valuer.
func (a AuditDetails) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil //nolint:nilnil // SQL NULL
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *AuditDetails) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return fmt.Errorf("failed to unmarshal AuditDetails value: %v", value)
		}
	}
	return json.Unmarshal(bytes, a)
}

// AuditLog is one persisted audit record. Security-relevant protocol
// transitions are logged with the grantId so incidents can be traced without
// ever logging token material.
type AuditLog struct {
	ID        string        `gorm:"primaryKey;size:36"`
	EventType EventType     `gorm:"not null;index"`
	EventTime time.Time     `gorm:"not null;index"`
	Severity  EventSeverity `gorm:"not null;index"`

	ActorUserID string `gorm:"index"`
	ActorIP     string

	ResourceType ResourceType `gorm:"index"`
	ResourceID   string       `gorm:"index"`

	Action       string       `gorm:"not null"`
	Details      AuditDetails `gorm:"type:json"`
	Success      bool         `gorm:"not null;index"`
	ErrorMessage string

	CreatedAt time.Time `gorm:"index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
