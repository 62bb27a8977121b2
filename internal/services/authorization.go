package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
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

// Authorization code flow errors. Names follow the RFC 6749 error registry
// where one applies.
var (
	ErrInvalidAuthRequest      = errors.New("invalid_request")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrAccessDenied            = errors.New("access_denied")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidRedirectURI      = errors.New("invalid redirect_uri")
	ErrCodeNotFound            = errors.New("authorization code not found")
	ErrCodeExpired             = errors.New("authorization code expired")
	ErrCodeConsumed            = errors.New("authorization code already consumed")
	ErrPKCERequired            = errors.New("pkce required")
	ErrPlainPKCEUnsupported    = errors.New("only the S256 code_challenge_method is supported")
	ErrInvalidCodeVerifier     = errors.New("invalid code_verifier")
)

// AuthorizationRequest holds validated parameters for an authorization request.
type AuthorizationRequest struct {
	Client        *models.Client
	RedirectURI   string
	Scopes        []scope.Scope
	State         string
	CodeChallenge string
}

// AuthorizationService manages the OAuth 2.0 Authorization Code Flow (RFC 6749
// §4.1) with mandatory-for-public-clients PKCE (RFC 7636, S256 only).
type AuthorizationService struct {
	store        *store.Store
	config       *config.Config
	grantService *GrantService
	auditService *AuditService
	metrics      metrics.Recorder
}

func NewAuthorizationService(
	s *store.Store,
	cfg *config.Config,
	grantService *GrantService,
	auditService *AuditService,
	recorder metrics.Recorder,
) *AuthorizationService {
	if recorder == nil {
		recorder = metrics.NewNoopMetrics()
	}
	return &AuthorizationService{
		store:        s,
		config:       cfg,
		grantService: grantService,
		auditService: auditService,
		metrics:      recorder,
	}
}

// ValidateAuthorizationRequest validates all parameters of an incoming
// authorization request. An ErrUnauthorizedClient or ErrInvalidRedirectURI
// result means the caller must NOT redirect: errors are only delivered to a
// redirect_uri that has itself been validated.
func (s *AuthorizationService) ValidateAuthorizationRequest(
	clientID, redirectURI, responseType, scopeParam, state, codeChallenge, codeChallengeMethod string,
) (*AuthorizationRequest, error) {
	// 1. Client must exist and accept authorizations
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrUnauthorizedClient
	}

	// 2. redirect_uri must exactly match one of the registered URIs
	if !client.HasRedirectURI(redirectURI) {
		return nil, ErrInvalidRedirectURI
	}

	// From here on the redirect target is trusted and errors may be
	// delivered to it.

	// 3. response_type must be "code"
	if responseType != "code" {
		return nil, ErrUnsupportedResponseType
	}

	// 4. Requested scopes must parse and be covered by the registration
	allowed, err := scope.ParseList(client.ScopesAllowed)
	if err != nil {
		return nil, fmt.Errorf("client %s has malformed scopes: %w", clientID, err)
	}
	var requested []scope.Scope
	if scopeParam == "" {
		requested = allowed
	} else {
		requested, err = scope.ParseList(scopeParam)
		if err != nil {
			return nil, scope.ErrInvalidScope
		}
		if !scope.IsSubset(requested, allowed) {
			return nil, scope.ErrInvalidScope
		}
	}

	// 5. PKCE: S256 only, mandatory for public clients
	if codeChallenge == "" && codeChallengeMethod == "" {
		if client.IsPublic() {
			return nil, ErrPKCERequired
		}
	} else {
		if codeChallengeMethod != "S256" {
			return nil, ErrPlainPKCEUnsupported
		}
		if codeChallenge == "" {
			return nil, ErrInvalidAuthRequest
		}
	}

	return &AuthorizationRequest{
		Client:        client,
		RedirectURI:   redirectURI,
		Scopes:        scope.Normalize(requested),
		State:         state,
		CodeChallenge: codeChallenge,
	}, nil
}

// IssueCode mints a single-use authorization code under a brand-new grant.
// Returns the plaintext code to place in the redirect.
func (s *AuthorizationService) IssueCode(
	ctx context.Context,
	req *AuthorizationRequest,
	userID string,
) (plainCode string, record *models.AuthorizationCode, err error) {
	rawBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		s.metrics.RecordCodeIssued(false)
		return "", nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}
	plainCode = hex.EncodeToString(rawBytes)

	// SHA-256 for storage; the 256-bit entropy makes a salt unnecessary
	codeHash := util.SHA256Hex(plainCode)

	method := ""
	if req.CodeChallenge != "" {
		method = "S256"
	}

	record = &models.AuthorizationCode{
		CodeHash:            codeHash,
		CodePrefix:          plainCode[:8],
		GrantID:             uuid.New().String(),
		ClientID:            req.Client.ClientID,
		UserID:              userID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scope.Join(req.Scopes),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           time.Now().Add(s.config.AuthCodeExpiration),
	}

	if err := s.store.CreateAuthorizationCode(record); err != nil {
		s.metrics.RecordCodeIssued(false)
		return "", nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.metrics.RecordCodeIssued(true)

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventAuthorizationCodeIssued,
			Severity:     models.SeverityInfo,
			ActorUserID:  userID,
			ResourceType: models.ResourceCode,
			ResourceID:   record.GrantID,
			Action:       "Authorization code issued",
			Details: models.AuditDetails{
				"client_id":    record.ClientID,
				"scopes":       record.Scopes,
				"pkce":         record.CodeChallenge != "",
				"redirect_uri": record.RedirectURI,
				"code_prefix":  record.CodePrefix,
			},
			Success: true,
		})
	}

	return plainCode, record, nil
}

// ConsumeCode validates a presented authorization code and atomically claims
// it. Validation order: existence, expiry, prior consumption, client binding,
// redirect_uri binding, PKCE. A code presented twice, or presented with the
// wrong bindings, is treated as interception and the whole grant is revoked.
func (s *AuthorizationService) ConsumeCode(
	ctx context.Context,
	plainCode string,
	client *models.Client,
	redirectURI, codeVerifier string,
) (*models.AuthorizationCode, error) {
	record, err := s.store.GetAuthorizationCodeByHash(util.SHA256Hex(plainCode))
	if err != nil {
		s.metrics.RecordCodeExchange(metrics.ResultInvalid)
		return nil, ErrCodeNotFound
	}

	if record.IsExpired() {
		// Expired codes still anchor the grant: a stolen code replayed after
		// the window would otherwise slip past the consumed check below.
		s.revokeCompromisedGrant(ctx, record, "expired authorization code presented")
		s.metrics.RecordCodeExchange(metrics.ResultExpired)
		return nil, ErrCodeExpired
	}

	if record.IsConsumed() {
		// Second presentation of a one-time code: someone holds a copy.
		// Kill every credential descended from it.
		s.revokeCompromisedGrant(ctx, record, "authorization code replayed")
		s.metrics.RecordCodeExchange(metrics.ResultConsumed)
		return nil, ErrCodeConsumed
	}

	if record.ClientID != client.ClientID {
		// Don't reveal that the code exists for another client
		s.revokeCompromisedGrant(ctx, record, "authorization code presented by wrong client")
		s.metrics.RecordCodeExchange(metrics.ResultMismatch)
		return nil, ErrCodeNotFound
	}

	if record.RedirectURI != redirectURI {
		s.revokeCompromisedGrant(ctx, record, "redirect_uri mismatch at exchange")
		s.metrics.RecordCodeExchange(metrics.ResultMismatch)
		return nil, ErrInvalidRedirectURI
	}

	if record.CodeChallenge != "" {
		if !verifyPKCE(record.CodeChallenge, codeVerifier) {
			s.revokeCompromisedGrant(ctx, record, "pkce verification failed")
			s.metrics.RecordCodeExchange(metrics.ResultMismatch)
			return nil, ErrInvalidCodeVerifier
		}
	} else if client.IsPublic() {
		return nil, ErrPKCERequired
	}

	// Claim atomically (WHERE consumed_at IS NULL ensures only one concurrent
	// exchange wins; the loser triggers the replay response above on retry).
	now := time.Now()
	if err := s.store.ConsumeAuthorizationCode(record.ID); err != nil {
		if errors.Is(err, store.ErrCodeAlreadyConsumed) {
			s.revokeCompromisedGrant(ctx, record, "concurrent authorization code exchange")
			s.metrics.RecordCodeExchange(metrics.ResultConsumed)
			return nil, ErrCodeConsumed
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	record.ConsumedAt = &now

	s.metrics.RecordCodeExchange(metrics.ResultSuccess)

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventAuthorizationCodeConsumed,
			Severity:     models.SeverityInfo,
			ActorUserID:  record.UserID,
			ResourceType: models.ResourceCode,
			ResourceID:   record.GrantID,
			Action:       "Authorization code exchanged for tokens",
			Details: models.AuditDetails{
				"client_id":   record.ClientID,
				"scopes":      record.Scopes,
				"code_prefix": record.CodePrefix,
			},
			Success: true,
		})
	}

	return record, nil
}

// revokeCompromisedGrant cascades a revocation when a code presentation looks
// like interception. Best-effort: the exchange is rejected either way.
func (s *AuthorizationService) revokeCompromisedGrant(
	ctx context.Context,
	record *models.AuthorizationCode,
	reason string,
) {
	if s.grantService == nil {
		return
	}
	if err := s.grantService.RevokeGrant(ctx, record.GrantID, metrics.ReasonExchangeFailure); err != nil {
		return
	}
	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventSuspiciousActivity,
			Severity:     models.SeverityCritical,
			ActorUserID:  record.UserID,
			ResourceType: models.ResourceGrant,
			ResourceID:   record.GrantID,
			Action:       "Grant revoked after suspicious code presentation",
			Details: models.AuditDetails{
				"client_id":   record.ClientID,
				"code_prefix": record.CodePrefix,
				"reason":      reason,
			},
			Success: true,
		})
	}
}

// verifyPKCE validates code_verifier against the stored S256 code_challenge.
func verifyPKCE(codeChallenge, codeVerifier string) bool {
	if codeVerifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(codeVerifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return util.SecureCompare(computed, codeChallenge)
}
