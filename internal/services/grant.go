package services

import (
	"context"
	"fmt"

	"github.com/scribehub/scribegate/internal/metrics"
	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/store"
)

// GrantService owns the grant lifecycle. A grant is the unit of consent: the
// authorization code and every token-pair generation descended from it share
// one grantId, and revocation removes them all at once.
type GrantService struct {
	store        *store.Store
	auditService *AuditService
	metrics      metrics.Recorder
}

func NewGrantService(s *store.Store, auditService *AuditService, recorder metrics.Recorder) *GrantService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &GrantService{store: s, auditService: auditService, metrics: recorder}
}

// RevokeGrant removes every credential under a grant. Idempotent: revoking an
// unknown or already-revoked grant succeeds and removes nothing.
func (s *GrantService) RevokeGrant(ctx context.Context, grantID, reason string) error {
	removed, err := s.store.RevokeGrant(ctx, grantID)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	if removed > 0 {
		s.metrics.RecordGrantRevoked(reason)
		if s.auditService != nil {
			s.auditService.Log(ctx, AuditLogEntry{
				EventType:    models.EventGrantRevoked,
				Severity:     models.SeverityInfo,
				ResourceType: models.ResourceGrant,
				ResourceID:   grantID,
				Action:       "Grant revoked, all descendant credentials removed",
				Details: models.AuditDetails{
					"reason":       reason,
					"removed_rows": removed,
				},
				Success: true,
			})
		}
	}

	return nil
}

// RevokeByToken implements RFC 7009 semantics for an opaque token string: the
// token may be either half of a pair, and revoking it cascades to the whole
// grant. Unknown or malformed tokens are not an error; revocation must never
// leak whether a token exists.
func (s *GrantService) RevokeByToken(ctx context.Context, token string) error {
	pair := s.findPairByToken(token)
	if pair == nil {
		return nil
	}

	s.metrics.RecordTokenRevoked(metrics.ReasonUserRequest)
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenRevoked,
			Severity:     models.SeverityInfo,
			ActorUserID:  pair.UserID,
			ResourceType: models.ResourceToken,
			ResourceID:   pair.ID,
			Action:       "Token revoked on request",
			Details: models.AuditDetails{
				"client_id": pair.ClientID,
				"grant_id":  pair.GrantID,
			},
			Success: true,
		})
	}

	return s.RevokeGrant(ctx, pair.GrantID, metrics.ReasonUserRequest)
}

// findPairByToken resolves an opaque token string to its pair, trying the
// access prefix first and falling back to refresh. Rotated tombstones resolve
// too: revoking a rotated-away token still kills the grant.
func (s *GrantService) findPairByToken(token string) *models.TokenPair {
	if lookup := models.TokenLookupID(token, models.AccessTokenPrefix); lookup != "" {
		candidates, err := s.store.GetTokenPairsByAccessLookup(lookup)
		if err == nil {
			for _, pair := range candidates {
				if verifyTokenHash(token, pair.AccessTokenSalt, pair.AccessTokenHash) {
					return pair
				}
			}
		}
		return nil
	}

	if lookup := models.TokenLookupID(token, models.RefreshTokenPrefix); lookup != "" {
		candidates, err := s.store.GetTokenPairsByRefreshLookup(lookup)
		if err == nil {
			for _, pair := range candidates {
				if verifyTokenHash(token, pair.RefreshTokenSalt, pair.RefreshTokenHash) {
					return pair
				}
			}
		}
	}

	return nil
}
