package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/scope"
	"github.com/scribehub/scribegate/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid_request"
	maxStateLength    = 1024
)

// AuthorizationHandler drives the /oauth/authorize endpoint. Consent is
// rendered by the first-party web app, which fetches the consent payload as
// JSON and posts the decision back.
type AuthorizationHandler struct {
	authorizationService *services.AuthorizationService
	config               *config.Config
}

func NewAuthorizationHandler(
	as *services.AuthorizationService,
	cfg *config.Config,
) *AuthorizationHandler {
	return &AuthorizationHandler{
		authorizationService: as,
		config:               cfg,
	}
}

// consentScope is one presentation row of the consent screen.
type consentScope struct {
	Namespace string `json:"namespace"`
	Access    string `json:"access"`
}

// ShowAuthorize validates an authorization request and returns the consent
// payload (GET /oauth/authorize). Requires a logged-in session.
func (h *AuthorizationHandler) ShowAuthorize(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	responseType := c.Query("response_type")
	scopeParam := c.Query("scope")
	state := c.Query("state")
	codeChallenge := c.Query("code_challenge")
	codeChallengeMethod := c.Query("code_challenge_method")

	req, err := h.authorizationService.ValidateAuthorizationRequest(
		clientID, redirectURI, responseType, scopeParam, state,
		codeChallenge, codeChallengeMethod,
	)
	if err != nil {
		h.handleValidationError(c, redirectURI, state, err)
		return
	}

	// Checked only after validation: redirecting an error to an unvalidated
	// redirect_uri would make this an open redirector.
	if len(state) > maxStateLength {
		h.redirectWithError(c, req.RedirectURI, "", errInvalidRequest,
			"state parameter exceeds maximum length")
		return
	}

	groups := scope.DisplayGroups(req.Scopes)
	display := make([]consentScope, 0, len(groups))
	for _, g := range groups {
		display = append(display, consentScope{Namespace: g.Namespace, Access: g.Access})
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id":          req.Client.ClientID,
		"client_name":        req.Client.Name,
		"client_description": req.Client.Description,
		"published":          req.Client.Published,
		"redirect_uri":       req.RedirectURI,
		"scope":              scope.Join(req.Scopes),
		"scope_groups":       display,
		"state":              req.State,
	})
}

// HandleAuthorize processes the user's consent decision (POST /oauth/authorize).
func (h *AuthorizationHandler) HandleAuthorize(c *gin.Context) {
	action := c.PostForm("action") // "approve" or "deny"
	clientID := c.PostForm("client_id")
	redirectURI := c.PostForm("redirect_uri")
	scopeParam := c.PostForm("scope")
	state := c.PostForm("state")
	codeChallenge := c.PostForm("code_challenge")
	codeChallengeMethod := c.PostForm("code_challenge_method")

	// Re-validate on POST to prevent parameter tampering between the consent
	// fetch and the decision
	req, err := h.authorizationService.ValidateAuthorizationRequest(
		clientID, redirectURI, "code", scopeParam, state,
		codeChallenge, codeChallengeMethod,
	)
	if err != nil {
		h.handleValidationError(c, redirectURI, state, err)
		return
	}

	if len(state) > maxStateLength {
		h.redirectWithError(c, req.RedirectURI, "", errInvalidRequest,
			"state parameter exceeds maximum length")
		return
	}

	if action != "approve" {
		h.redirectWithError(c, redirectURI, state, "access_denied",
			"User denied the authorization request")
		return
	}

	userID := c.GetString("user_id")
	h.issueCodeAndRedirect(c, req, userID)
}

// issueCodeAndRedirect mints an authorization code and redirects to the
// validated redirect_uri.
func (h *AuthorizationHandler) issueCodeAndRedirect(
	c *gin.Context,
	req *services.AuthorizationRequest,
	userID string,
) {
	plainCode, _, err := h.authorizationService.IssueCode(c.Request.Context(), req, userID)
	if err != nil {
		h.redirectWithError(c, req.RedirectURI, req.State, "server_error",
			"Failed to generate authorization code")
		return
	}

	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid redirect_uri"})
		return
	}
	q := u.Query()
	q.Set("code", plainCode)
	if req.State != "" {
		q.Set("state", req.State)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// handleValidationError routes a validation failure either to the client's
// redirect_uri or, when the redirect target itself could not be trusted, to a
// direct JSON error. Redirecting errors to an unvalidated URI would make the
// endpoint an open redirector.
func (h *AuthorizationHandler) handleValidationError(
	c *gin.Context,
	redirectURI, state string,
	err error,
) {
	if errors.Is(err, services.ErrUnauthorizedClient) ||
		errors.Is(err, services.ErrInvalidRedirectURI) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             oauthErrorCode(err),
			"error_description": err.Error(),
		})
		return
	}
	h.redirectWithError(c, redirectURI, state, oauthErrorCode(err), err.Error())
}

// redirectWithError sends an OAuth error response as a redirect to the
// client's redirect_uri.
func (h *AuthorizationHandler) redirectWithError(
	c *gin.Context,
	redirectURI, state, errorCode, description string,
) {
	u, err := url.Parse(redirectURI)
	if redirectURI == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             errorCode,
			"error_description": description,
		})
		return
	}
	q := u.Query()
	q.Set("error", errorCode)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, u.String())
}

// oauthErrorCode maps service errors to RFC 6749 error codes.
func oauthErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthorizedClient):
		return "unauthorized_client"
	case errors.Is(err, services.ErrUnsupportedResponseType):
		return "unsupported_response_type"
	case errors.Is(err, scope.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, services.ErrInvalidRedirectURI):
		return errInvalidRequest
	default:
		return errInvalidRequest
	}
}
