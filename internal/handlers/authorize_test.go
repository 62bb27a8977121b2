package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowAuthorize_ConsentPayload(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	w := env.get(t, "/oauth/authorize?"+url.Values{
		"client_id":     {client.ClientID},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"scope":         {"documents.read documents.write"},
		"state":         {"abc123"},
	}.Encode())

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeJSON(t, w)
	assert.Equal(t, client.ClientID, body["client_id"])
	assert.Equal(t, "Test Client", body["client_name"])
	assert.Equal(t, "abc123", body["state"])
	assert.Equal(t, "documents.read documents.write", body["scope"])

	// The two document scopes collapse into one presentation row
	groups, ok := body["scope_groups"].([]any)
	require.True(t, ok)
	require.Len(t, groups, 1)
	group := groups[0].(map[string]any)
	assert.Equal(t, "documents", group["namespace"])
	assert.Equal(t, "write", group["access"])
}

func TestShowAuthorize_UnknownClientGetsNoRedirect(t *testing.T) {
	env := setupTestEnv(t)

	w := env.get(t, "/oauth/authorize?"+url.Values{
		"client_id":     {"sgc_missing"},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
	}.Encode())

	// No Location header: errors never flow to an unvalidated redirect_uri
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
	assert.Equal(t, "unauthorized_client", decodeJSON(t, w)["error"])
}

func TestShowAuthorize_UnregisteredRedirectGetsNoRedirect(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	w := env.get(t, "/oauth/authorize?"+url.Values{
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://evil.example.com/cb"},
		"response_type": {"code"},
	}.Encode())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestShowAuthorize_ScopeErrorRedirects(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	w := env.get(t, "/oauth/authorize?"+url.Values{
		"client_id":     {client.ClientID},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"scope":         {"users.read"},
		"state":         {"xyz"},
	}.Encode())

	// The redirect target was validated, so the error goes to the client
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), testRedirectURI))
	assert.Equal(t, "invalid_scope", loc.Query().Get("error"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))
}

func TestHandleAuthorize_ApproveRedirectsWithCode(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	w := env.postForm(t, "/oauth/authorize", url.Values{
		"action":       {"approve"},
		"client_id":    {client.ClientID},
		"redirect_uri": {testRedirectURI},
		"state":        {"state-1"},
	})

	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Len(t, loc.Query().Get("code"), 64)
	assert.Equal(t, "state-1", loc.Query().Get("state"))
	assert.Empty(t, loc.Query().Get("error"))
}

func TestHandleAuthorize_DenyRedirectsWithAccessDenied(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	w := env.postForm(t, "/oauth/authorize", url.Values{
		"action":       {"deny"},
		"client_id":    {client.ClientID},
		"redirect_uri": {testRedirectURI},
		"state":        {"state-2"},
	})

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "state-2", loc.Query().Get("state"))
	assert.Empty(t, loc.Query().Get("code"))
}

func TestHandleAuthorize_OversizedState(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	w := env.postForm(t, "/oauth/authorize", url.Values{
		"action":       {"approve"},
		"client_id":    {client.ClientID},
		"redirect_uri": {testRedirectURI},
		"state":        {strings.Repeat("x", maxStateLength+1)},
	})

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, errInvalidRequest, loc.Query().Get("error"))
	assert.Empty(t, loc.Query().Get("code"))
}

func TestHandleAuthorize_OversizedStateUnregisteredRedirect(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	// An untrusted redirect_uri must never receive a redirect, not even for
	// the state-length error
	w := env.postForm(t, "/oauth/authorize", url.Values{
		"action":       {"approve"},
		"client_id":    {client.ClientID},
		"redirect_uri": {"https://evil.example.com/phish"},
		"state":        {strings.Repeat("x", maxStateLength+1)},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestShowAuthorize_OversizedStateUnregisteredRedirect(t *testing.T) {
	env := setupTestEnv(t)
	client, _ := env.createClient(t, false)

	w := env.get(t, "/oauth/authorize?client_id="+client.ClientID+
		"&redirect_uri=https%3A%2F%2Fevil.example.com%2Fphish"+
		"&response_type=code&state="+strings.Repeat("x", maxStateLength+1))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}
