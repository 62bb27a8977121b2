package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/services"
	"github.com/scribehub/scribegate/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testRedirectURI = "https://app.example.com/callback"

// testEnv wires the whole handler stack against an in-memory store, with a
// stubbed login session that injects user_id into the request context.
type testEnv struct {
	router  *gin.Engine
	store   *store.Store
	clients *services.ClientService
	tokens  *services.TokenService
	userID  string
}

func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:                "http://localhost:8080",
		AuthCodeExpiration:     10 * time.Minute,
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 1440 * time.Hour,
	}

	grants := services.NewGrantService(s, nil, nil)
	tokens := services.NewTokenService(s, cfg, grants, nil, nil)
	auth := services.NewAuthorizationService(s, cfg, grants, nil, nil)
	clients := services.NewClientService(s, nil)

	authHandler := NewAuthorizationHandler(auth, cfg)
	tokenHandler := NewTokenHandler(tokens, auth, clients, grants, cfg)
	clientHandler := NewClientHandler(clients)

	env := &testEnv{store: s, clients: clients, tokens: tokens, userID: uuid.NewString()}

	r := gin.New()
	// Stand-in for the session middleware: every request is authenticated
	r.Use(func(c *gin.Context) {
		c.Set("user_id", env.userID)
		c.Set("team_id", "team-1")
	})
	r.GET("/oauth/authorize", authHandler.ShowAuthorize)
	r.POST("/oauth/authorize", authHandler.HandleAuthorize)
	r.POST("/oauth/token", tokenHandler.Token)
	r.POST("/oauth/revoke", tokenHandler.Revoke)
	r.GET("/oauth/tokeninfo", tokenHandler.TokenInfo)
	r.POST("/api/clients", clientHandler.Create)
	r.GET("/api/clients", clientHandler.List)
	r.GET("/api/clients/:client_id", clientHandler.Get)
	r.PUT("/api/clients/:client_id", clientHandler.Update)
	r.DELETE("/api/clients/:client_id", clientHandler.Delete)
	r.POST("/api/clients/:client_id/rotate-secret", clientHandler.RotateSecret)

	env.router = r
	return env
}

func (e *testEnv) createClient(t *testing.T, public bool) (*models.Client, string) {
	t.Helper()
	client := &models.Client{
		ClientID:      "sgc_" + uuid.NewString(),
		Name:          "Test Client",
		TeamID:        "team-1",
		CreatedBy:     e.userID,
		RedirectURIs:  models.StringArray{testRedirectURI},
		ScopesAllowed: "documents.read documents.write",
	}
	var secret string
	if !public {
		var err error
		secret, err = client.GenerateClientSecret()
		require.NoError(t, err)
	}
	require.NoError(t, e.store.CreateClient(client))
	return client, secret
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func newFormRequest(t *testing.T, path string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func newGetRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func serveRequest(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// authorize drives the consent POST and returns the code from the redirect.
func (e *testEnv) authorize(t *testing.T, client *models.Client, extra url.Values) string {
	t.Helper()
	form := url.Values{
		"action":       {"approve"},
		"client_id":    {client.ClientID},
		"redirect_uri": {testRedirectURI},
	}
	for k, vs := range extra {
		form[k] = vs
	}
	w := e.postForm(t, "/oauth/authorize", form)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code, "redirect carried no code: %s", loc)
	return code
}

// exchangeCode posts the authorization_code grant and returns the decoded
// token response.
func (e *testEnv) exchangeCode(
	t *testing.T,
	client *models.Client,
	secret, code string,
) map[string]any {
	t.Helper()
	form := url.Values{
		"grant_type":   {GrantTypeAuthorizationCode},
		"code":         {code},
		"redirect_uri": {testRedirectURI},
		"client_id":    {client.ClientID},
	}
	if secret != "" {
		form.Set("client_secret", secret)
	}
	w := e.postForm(t, "/oauth/token", form)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeJSON(t, w)
}
