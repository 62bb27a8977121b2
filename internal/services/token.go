package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/metrics"
	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/scope"
	"github.com/scribehub/scribegate/internal/store"
	"github.com/scribehub/scribegate/internal/util"

	"github.com/google/uuid"
)

// Token lifecycle errors
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshExpired      = errors.New("refresh token expired")
	ErrScopeEscalation     = errors.New("requested scope exceeds the grant")
	ErrReplayDetected      = errors.New("refresh token replay detected")
	ErrTokenPairLimit      = errors.New("client reached its active token pair limit")
)

// TokenService issues and rotates opaque token pairs. A pair is one
// generation of access+refresh credentials; refresh replaces the pair
// wholesale rather than reissuing just the access half.
type TokenService struct {
	store        *store.Store
	config       *config.Config
	grantService *GrantService
	auditService *AuditService
	metrics      metrics.Recorder
}

func NewTokenService(
	s *store.Store,
	cfg *config.Config,
	grantService *GrantService,
	auditService *AuditService,
	recorder metrics.Recorder,
) *TokenService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &TokenService{
		store:        s,
		config:       cfg,
		grantService: grantService,
		auditService: auditService,
		metrics:      recorder,
	}
}

// IssueFromCode mints the first token-pair generation of a grant, after the
// authorization code has been consumed. The consumed code row stays behind as
// a replay tripwire until the grant is revoked or the expiry sweep removes it.
func (s *TokenService) IssueFromCode(
	ctx context.Context,
	code *models.AuthorizationCode,
) (*models.TokenPair, error) {
	start := time.Now()

	if err := s.checkPairLimit(code.ClientID); err != nil {
		return nil, err
	}

	pair, err := s.buildPair(code.GrantID, code.UserID, code.ClientID, code.Scopes, "")
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateTokenPair(pair); err != nil {
		return nil, fmt.Errorf("failed to save token pair: %w", err)
	}

	s.metrics.RecordTokenPairIssued("authorization_code", time.Since(start))

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenPairIssued,
			Severity:     models.SeverityInfo,
			ActorUserID:  pair.UserID,
			ResourceType: models.ResourceToken,
			ResourceID:   pair.ID,
			Action:       "Token pair issued from authorization code",
			Details: models.AuditDetails{
				"client_id": pair.ClientID,
				"grant_id":  pair.GrantID,
				"scopes":    pair.Scopes,
			},
			Success: true,
		})
	}

	return pair, nil
}

// ValidateAccess resolves an opaque access token to its pair. Only active,
// unexpired pairs validate; a rotated pair's access token is dead even before
// its expiry timestamp.
func (s *TokenService) ValidateAccess(
	ctx context.Context,
	token string,
) (*models.TokenPair, error) {
	lookup := models.TokenLookupID(token, models.AccessTokenPrefix)
	if lookup == "" {
		s.metrics.RecordTokenValidation(metrics.ResultUnknown)
		return nil, ErrInvalidToken
	}

	candidates, err := s.store.GetTokenPairsByAccessLookup(lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	for _, pair := range candidates {
		if !verifyTokenHash(token, pair.AccessTokenSalt, pair.AccessTokenHash) {
			continue
		}
		if !pair.IsActive() {
			s.metrics.RecordTokenValidation(metrics.ResultUnknown)
			return nil, ErrInvalidToken
		}
		if pair.AccessExpired() {
			s.metrics.RecordTokenValidation(metrics.ResultExpired)
			return nil, ErrTokenExpired
		}

		// Best-effort activity tracking; never blocks a validation
		_ = s.store.TouchTokenPair(pair.ID)

		s.metrics.RecordTokenValidation(metrics.ResultValid)
		return pair, nil
	}

	s.metrics.RecordTokenValidation(metrics.ResultUnknown)
	return nil, ErrInvalidToken
}

// Rotate exchanges a refresh token for a successor pair. The presented pair
// is tombstoned, the successor inherits the grantId, and the refresh window
// slides forward. Presenting an already-rotated refresh token proves that two
// parties hold it, so the entire grant is revoked.
func (s *TokenService) Rotate(
	ctx context.Context,
	refreshToken string,
	client *models.Client,
	scopeParam string,
) (*models.TokenPair, error) {
	start := time.Now()

	pair := s.findPairByRefreshToken(refreshToken)
	if pair == nil {
		s.metrics.RecordTokenRefresh(metrics.ResultUnknown)
		return nil, ErrInvalidRefreshToken
	}

	// The refresh token is bound to the client it was issued to
	if pair.ClientID != client.ClientID {
		s.metrics.RecordTokenRefresh(metrics.ResultUnknown)
		return nil, ErrInvalidRefreshToken
	}

	if pair.IsRotated() {
		return nil, s.handleReplay(ctx, pair)
	}

	if pair.RefreshExpired() {
		s.metrics.RecordTokenRefresh(metrics.ResultExpired)
		return nil, ErrRefreshExpired
	}

	// Scopes may only narrow across a rotation
	scopes := pair.Scopes
	if scopeParam != "" {
		requested, err := scope.ParseList(scopeParam)
		if err != nil {
			s.metrics.RecordTokenRefresh(metrics.ResultScopeEscalation)
			return nil, ErrScopeEscalation
		}
		held, err := scope.ParseList(pair.Scopes)
		if err != nil {
			return nil, fmt.Errorf("pair %s has malformed scopes: %w", pair.ID, err)
		}
		if !scope.IsSubset(requested, held) {
			s.metrics.RecordTokenRefresh(metrics.ResultScopeEscalation)
			return nil, ErrScopeEscalation
		}
		scopes = scope.Join(scope.Normalize(requested))
	}

	successor, err := s.buildPair(pair.GrantID, pair.UserID, pair.ClientID, scopes, pair.ID)
	if err != nil {
		return nil, err
	}

	if err := s.store.RotateTokenPair(ctx, pair.ID, successor); err != nil {
		if errors.Is(err, store.ErrTokenPairNotActive) {
			// Lost a race: another holder rotated this pair first
			return nil, s.handleReplay(ctx, pair)
		}
		return nil, fmt.Errorf("failed to rotate token pair: %w", err)
	}

	s.metrics.RecordTokenRefresh(metrics.ResultSuccess)
	s.metrics.RecordTokenPairIssued("refresh_token", time.Since(start))

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventTokenPairRotated,
			Severity:     models.SeverityInfo,
			ActorUserID:  pair.UserID,
			ResourceType: models.ResourceToken,
			ResourceID:   successor.ID,
			Action:       "Token pair rotated",
			Details: models.AuditDetails{
				"client_id":    pair.ClientID,
				"grant_id":     pair.GrantID,
				"rotated_from": pair.ID,
				"scopes":       scopes,
			},
			Success: true,
		})
	}

	return successor, nil
}

// handleReplay is the response to a rotated refresh token being presented
// again: revoke the grant and surface the replay to callers.
func (s *TokenService) handleReplay(ctx context.Context, pair *models.TokenPair) error {
	s.metrics.RecordReplayDetected()
	s.metrics.RecordTokenRefresh(metrics.ResultReplay)

	if s.auditService != nil {
		_ = s.auditService.LogSync(ctx, AuditLogEntry{
			EventType:    models.EventReplayDetected,
			Severity:     models.SeverityCritical,
			ActorUserID:  pair.UserID,
			ResourceType: models.ResourceGrant,
			ResourceID:   pair.GrantID,
			Action:       "Rotated refresh token presented again, grant revoked",
			Details: models.AuditDetails{
				"client_id": pair.ClientID,
				"pair_id":   pair.ID,
			},
			Success: true,
		})
	}

	if err := s.grantService.RevokeGrant(ctx, pair.GrantID, metrics.ReasonReplay); err != nil {
		return fmt.Errorf("failed to revoke grant after replay: %w", err)
	}

	return ErrReplayDetected
}

// checkPairLimit caps how many active pairs a client may accumulate through
// fresh authorizations. Rotation is exempt: it tombstones the old pair in the
// same transaction, so the active count never grows.
func (s *TokenService) checkPairLimit(clientID string) error {
	if s.config.MaxTokenPairsPerClient <= 0 {
		return nil
	}
	count, err := s.store.CountActiveTokenPairsByClient(clientID)
	if err != nil {
		return fmt.Errorf("failed to count active token pairs: %w", err)
	}
	if count >= int64(s.config.MaxTokenPairsPerClient) {
		return ErrTokenPairLimit
	}
	return nil
}

func (s *TokenService) findPairByRefreshToken(token string) *models.TokenPair {
	lookup := models.TokenLookupID(token, models.RefreshTokenPrefix)
	if lookup == "" {
		return nil
	}
	candidates, err := s.store.GetTokenPairsByRefreshLookup(lookup)
	if err != nil {
		return nil
	}
	for _, pair := range candidates {
		if verifyTokenHash(token, pair.RefreshTokenSalt, pair.RefreshTokenHash) {
			return pair
		}
	}
	return nil
}

// buildPair constructs one token-pair generation with fresh credentials. The
// plaintext tokens live only in the returned struct's in-memory fields.
func (s *TokenService) buildPair(
	grantID, userID, clientID, scopes, rotatedFrom string,
) (*models.TokenPair, error) {
	access, err := newOpaqueToken(models.AccessTokenPrefix)
	if err != nil {
		return nil, err
	}
	refresh, err := newOpaqueToken(models.RefreshTokenPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &models.TokenPair{
		ID:      uuid.New().String(),
		GrantID: grantID,
		Status:  models.TokenStatusActive,

		UserID:   userID,
		ClientID: clientID,
		Scopes:   scopes,

		AccessTokenHash:   access.hash,
		AccessTokenSalt:   access.salt,
		AccessTokenLookup: access.lookup,
		AccessTokenLast4:  access.last4,

		RefreshTokenHash:   refresh.hash,
		RefreshTokenSalt:   refresh.salt,
		RefreshTokenLookup: refresh.lookup,
		RefreshTokenLast4:  refresh.last4,

		AccessToken:  access.plaintext,
		RefreshToken: refresh.plaintext,

		AccessExpiresAt:  now.Add(s.config.AccessTokenExpiration),
		RefreshExpiresAt: now.Add(s.config.RefreshTokenExpiration),

		RotatedFrom: rotatedFrom,
	}, nil
}

// opaqueToken carries the generated credential and its storage form.
type opaqueToken struct {
	plaintext string
	lookup    string
	salt      string
	hash      string
	last4     string
}

// newOpaqueToken generates prefix + 8-char lookup id + 64-char secret. The
// lookup id is stored in plaintext for retrieval; the whole token is stored
// as a salted PBKDF2 hash. The secret part alone carries 256 bits of
// entropy, so the lookup id contributes nothing to guessability.
func newOpaqueToken(prefix string) (*opaqueToken, error) {
	lookup, err := util.CryptoRandomString(models.TokenLookupLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	secret, err := util.CryptoRandomString(64)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	salt, err := util.CryptoRandomString(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token salt: %w", err)
	}

	plaintext := prefix + lookup + secret
	return &opaqueToken{
		plaintext: plaintext,
		lookup:    lookup,
		salt:      salt,
		hash:      util.HashToken(plaintext, salt),
		last4:     plaintext[len(plaintext)-4:],
	}, nil
}

// verifyTokenHash checks a presented token against its stored salted hash.
func verifyTokenHash(token, salt, storedHash string) bool {
	return util.SecureCompare(util.HashToken(token, salt), storedHash)
}
