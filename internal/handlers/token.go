package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	// https://datatracker.ietf.org/doc/html/rfc6749#section-4.1
	GrantTypeAuthorizationCode = "authorization_code"
	// https://datatracker.ietf.org/doc/html/rfc6749#section-6
	GrantTypeRefreshToken = "refresh_token"

	errInvalidGrant = "invalid_grant"
)

// TokenHandler serves the token endpoint family: /oauth/token,
// /oauth/revoke, and /oauth/tokeninfo.
type TokenHandler struct {
	tokenService         *services.TokenService
	authorizationService *services.AuthorizationService
	clientService        *services.ClientService
	grantService         *services.GrantService
	config               *config.Config
}

func NewTokenHandler(
	ts *services.TokenService,
	as *services.AuthorizationService,
	cs *services.ClientService,
	gs *services.GrantService,
	cfg *config.Config,
) *TokenHandler {
	return &TokenHandler{
		tokenService:         ts,
		authorizationService: as,
		clientService:        cs,
		grantService:         gs,
		config:               cfg,
	}
}

// Token dispatches POST /oauth/token by grant_type (RFC 6749 §3.2).
func (h *TokenHandler) Token(c *gin.Context) {
	grantType := c.PostForm("grant_type")

	switch grantType {
	case GrantTypeAuthorizationCode:
		h.handleAuthorizationCodeGrant(c)
	case GrantTypeRefreshToken:
		h.handleRefreshTokenGrant(c)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: authorization_code, refresh_token",
		})
	}
}

// authenticateClient resolves and authenticates the requesting client.
// Credentials are accepted via HTTP Basic Auth (preferred per RFC 6749
// §2.3.1) or as form-body parameters. Writes the error response itself and
// returns nil on failure.
func (h *TokenHandler) authenticateClient(c *gin.Context) *models.Client {
	clientID, clientSecret, ok := c.Request.BasicAuth()
	if !ok {
		clientID = c.PostForm("client_id")
		clientSecret = c.PostForm("client_secret")
	}

	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "client_id is required",
		})
		return nil
	}

	client, err := h.clientService.AuthenticateClient(c.Request.Context(), clientID, clientSecret)
	if err != nil {
		// RFC 6749 §5.2: 401 + WWW-Authenticate for invalid_client
		c.Header("WWW-Authenticate", `Basic realm="scribegate"`)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_client",
			"error_description": "Client authentication failed",
		})
		return nil
	}
	return client
}

// handleAuthorizationCodeGrant exchanges a code for the grant's first token
// pair (RFC 6749 §4.1.3).
func (h *TokenHandler) handleAuthorizationCodeGrant(c *gin.Context) {
	code := c.PostForm("code")
	redirectURI := c.PostForm("redirect_uri")
	codeVerifier := c.PostForm("code_verifier") // PKCE; empty for confidential clients

	if code == "" || redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code and redirect_uri are required",
		})
		return
	}

	client := h.authenticateClient(c)
	if client == nil {
		return
	}

	authCode, err := h.authorizationService.ConsumeCode(
		c.Request.Context(), code, client, redirectURI, codeVerifier,
	)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errInvalidGrant,
			"error_description": err.Error(),
		})
		return
	}

	pair, err := h.tokenService.IssueFromCode(c.Request.Context(), authCode)
	if err != nil {
		if errors.Is(err, services.ErrTokenPairLimit) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             errInvalidGrant,
				"error_description": "Client has too many active token pairs",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to issue tokens",
		})
		return
	}

	h.writeTokenResponse(c, pair)
}

// handleRefreshTokenGrant rotates a token pair (RFC 6749 §6).
func (h *TokenHandler) handleRefreshTokenGrant(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")
	requestedScopes := c.PostForm("scope") // Optional, narrow only

	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	client := h.authenticateClient(c)
	if client == nil {
		return
	}

	pair, err := h.tokenService.Rotate(c.Request.Context(), refreshToken, client, requestedScopes)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRefreshToken),
			errors.Is(err, services.ErrRefreshExpired),
			errors.Is(err, services.ErrReplayDetected):
			// A replayed token gets the same answer as an unknown one; the
			// response must not confirm that the grant existed
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             errInvalidGrant,
				"error_description": "Refresh token is invalid or expired",
			})
		case errors.Is(err, services.ErrScopeEscalation):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_scope",
				"error_description": "Requested scope exceeds original grant",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Token refresh failed",
			})
		}
		return
	}

	h.writeTokenResponse(c, pair)
}

// writeTokenResponse emits the RFC 6749 §5.1 success body.
func (h *TokenHandler) writeTokenResponse(c *gin.Context, pair *models.TokenPair) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(time.Until(pair.AccessExpiresAt).Seconds()),
		"scope":         pair.Scopes,
	})
}

// Revoke implements RFC 7009 (POST /oauth/revoke). Responds 200 for both
// successful revocations and unknown tokens to prevent token scanning.
func (h *TokenHandler) Revoke(c *gin.Context) {
	// RFC 7009 specifies that the token parameter is REQUIRED
	token := c.PostForm("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token parameter is required",
		})
		return
	}

	// token_type_hint is advisory only; both halves of a pair resolve to the
	// same grant so the hint never changes the outcome

	_ = h.grantService.RevokeByToken(c.Request.Context(), token)
	c.Status(http.StatusOK)
}

// TokenInfo validates a bearer access token and reports its claims
// (GET /oauth/tokeninfo, RFC 7662 style introspection).
func (h *TokenHandler) TokenInfo(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing_token",
		})
		return
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	pair, err := h.tokenService.ValidateAccess(c.Request.Context(), tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "invalid_token",
			"error_description": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":    true,
		"user_id":   pair.UserID,
		"client_id": pair.ClientID,
		"scope":     pair.Scopes,
		"exp":       pair.AccessExpiresAt.Unix(),
		"iss":       h.config.BaseURL,
	})
}
