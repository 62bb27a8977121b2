package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/scribehub/scribegate/internal/scope"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRedirectURI = "https://app.example.com/callback"

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestValidateAuthorizationRequest_Success(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code",
		"documents.read", "xyz", s256Challenge("verifier-value"), "S256",
	)

	require.NoError(t, err)
	assert.Equal(t, client.ClientID, req.Client.ClientID)
	assert.Equal(t, testRedirectURI, req.RedirectURI)
	assert.Equal(t, []scope.Scope{"documents.read"}, req.Scopes)
	assert.Equal(t, "xyz", req.State)
}

func TestValidateAuthorizationRequest_UnknownClient(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.auth.ValidateAuthorizationRequest(
		"sgc_nonexistent", testRedirectURI, "code", "", "", "", "",
	)

	assert.ErrorIs(t, err, ErrUnauthorizedClient)
}

func TestValidateAuthorizationRequest_UnregisteredRedirectURI(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)

	tests := []string{
		"https://evil.example.com/callback",
		"https://app.example.com/callback/extra", // no prefix matching
		"https://app.example.com",
		"",
	}
	for _, uri := range tests {
		_, err := svc.auth.ValidateAuthorizationRequest(
			client.ClientID, uri, "code", "", "", "", "",
		)
		assert.ErrorIs(t, err, ErrInvalidRedirectURI, "uri: %q", uri)
	}
}

func TestValidateAuthorizationRequest_UnsupportedResponseType(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)

	_, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "token", "", "", "", "",
	)

	assert.ErrorIs(t, err, ErrUnsupportedResponseType)
}

func TestValidateAuthorizationRequest_ScopeEscalation(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)

	// users.read is not in the registration's allowed scopes
	_, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "users.read", "", "", "",
	)

	assert.ErrorIs(t, err, scope.ErrInvalidScope)
}

func TestValidateAuthorizationRequest_EmptyScopeDefaultsToRegistration(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "", "",
	)

	require.NoError(t, err)
	assert.Equal(t, "collections.read documents.read documents.write", scope.Join(req.Scopes))
}

func TestValidateAuthorizationRequest_PlainPKCERejected(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)

	_, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "challenge-value", "plain",
	)

	assert.ErrorIs(t, err, ErrPlainPKCEUnsupported)
}

func TestValidateAuthorizationRequest_PublicClientRequiresPKCE(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, true)

	_, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "", "",
	)
	assert.ErrorIs(t, err, ErrPKCERequired)

	// With S256 the same request passes
	_, err = svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", s256Challenge("verifier"), "S256",
	)
	assert.NoError(t, err)
}

func TestIssueCode_FreshGrantPerCode(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)
	ctx := context.Background()

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "documents.read", "", "", "",
	)
	require.NoError(t, err)

	userID := uuid.NewString()
	code1, rec1, err := svc.auth.IssueCode(ctx, req, userID)
	require.NoError(t, err)
	code2, rec2, err := svc.auth.IssueCode(ctx, req, userID)
	require.NoError(t, err)

	assert.NotEqual(t, code1, code2)
	assert.NotEqual(t, rec1.GrantID, rec2.GrantID)
	assert.Len(t, code1, 64) // 32 random bytes, hex-encoded
	assert.Equal(t, code1[:8], rec1.CodePrefix)
	assert.Equal(t, "documents.read", rec1.Scopes)
	assert.False(t, rec1.IsConsumed())
}

func TestConsumeCode_Success(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)
	ctx := context.Background()

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "documents.read", "", "", "",
	)
	require.NoError(t, err)
	plainCode, issued, err := svc.auth.IssueCode(ctx, req, uuid.NewString())
	require.NoError(t, err)

	record, err := svc.auth.ConsumeCode(ctx, plainCode, client, testRedirectURI, "")

	require.NoError(t, err)
	assert.Equal(t, issued.GrantID, record.GrantID)
	assert.True(t, record.IsConsumed())
}

func TestConsumeCode_UnknownCode(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)

	_, err := svc.auth.ConsumeCode(
		context.Background(), "deadbeef", client, testRedirectURI, "",
	)

	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestConsumeCode_Expired(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)
	ctx := context.Background()

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "", "",
	)
	require.NoError(t, err)
	plainCode, issued, err := svc.auth.IssueCode(ctx, req, uuid.NewString())
	require.NoError(t, err)

	// Push the expiry into the past
	issued.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, svc.store.DB().Save(issued).Error)

	_, err = svc.auth.ConsumeCode(ctx, plainCode, client, testRedirectURI, "")

	assert.ErrorIs(t, err, ErrCodeExpired)

	// Presenting an expired code burns the grant: the code row is gone, so a
	// later attempt reads as an unknown code
	_, err = svc.auth.ConsumeCode(ctx, plainCode, client, testRedirectURI, "")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestConsumeCode_ExpiredConsumedCodeRevokesGrant(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)
	ctx := context.Background()

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "", "",
	)
	require.NoError(t, err)
	plainCode, _, err := svc.auth.IssueCode(ctx, req, uuid.NewString())
	require.NoError(t, err)

	record, err := svc.auth.ConsumeCode(ctx, plainCode, client, testRedirectURI, "")
	require.NoError(t, err)
	pair, err := svc.tokens.IssueFromCode(ctx, record)
	require.NoError(t, err)

	// Age the consumed tombstone past the code window
	record.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, svc.store.DB().Save(record).Error)

	// A stolen code replayed after expiry must still kill the tokens it seeded
	_, err = svc.auth.ConsumeCode(ctx, plainCode, client, testRedirectURI, "")
	assert.ErrorIs(t, err, ErrCodeExpired)

	_, err = svc.tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeCode_SecondUseRevokesGrant(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)
	ctx := context.Background()

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "", "",
	)
	require.NoError(t, err)
	plainCode, _, err := svc.auth.IssueCode(ctx, req, uuid.NewString())
	require.NoError(t, err)

	record, err := svc.auth.ConsumeCode(ctx, plainCode, client, testRedirectURI, "")
	require.NoError(t, err)
	pair, err := svc.tokens.IssueFromCode(ctx, record)
	require.NoError(t, err)

	// Replaying the consumed code must revoke the grant it spawned
	_, err = svc.auth.ConsumeCode(ctx, plainCode, client, testRedirectURI, "")
	assert.ErrorIs(t, err, ErrCodeConsumed)

	_, err = svc.tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsumeCode_WrongClient(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)
	other, _ := createTestClient(t, svc.store, false)
	ctx := context.Background()

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "", "",
	)
	require.NoError(t, err)
	plainCode, issued, err := svc.auth.IssueCode(ctx, req, uuid.NewString())
	require.NoError(t, err)

	// Presented by a different client: rejected without revealing the code
	// exists, and the grant is burned
	_, err = svc.auth.ConsumeCode(ctx, plainCode, other, testRedirectURI, "")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	removed, err := svc.store.RevokeGrant(ctx, issued.GrantID)
	require.NoError(t, err)
	assert.Zero(t, removed, "grant rows should already be gone")
}

func TestConsumeCode_RedirectURIMismatch(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, false)
	ctx := context.Background()

	req, err := svc.auth.ValidateAuthorizationRequest(
		client.ClientID, testRedirectURI, "code", "", "", "", "",
	)
	require.NoError(t, err)
	plainCode, _, err := svc.auth.IssueCode(ctx, req, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.auth.ConsumeCode(
		ctx, plainCode, client, "https://app.example.com/other", "",
	)

	assert.ErrorIs(t, err, ErrInvalidRedirectURI)
}

func TestConsumeCode_PKCE(t *testing.T) {
	svc := newTestServices(t)
	client, _ := createTestClient(t, svc.store, true)
	ctx := context.Background()

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	issue := func() string {
		req, err := svc.auth.ValidateAuthorizationRequest(
			client.ClientID, testRedirectURI, "code", "",
			"", s256Challenge(verifier), "S256",
		)
		require.NoError(t, err)
		plainCode, _, err := svc.auth.IssueCode(ctx, req, uuid.NewString())
		require.NoError(t, err)
		return plainCode
	}

	// Wrong verifier fails
	_, err := svc.auth.ConsumeCode(ctx, issue(), client, testRedirectURI, "wrong-verifier")
	assert.ErrorIs(t, err, ErrInvalidCodeVerifier)

	// Missing verifier fails
	_, err = svc.auth.ConsumeCode(ctx, issue(), client, testRedirectURI, "")
	assert.ErrorIs(t, err, ErrInvalidCodeVerifier)

	// Correct verifier succeeds
	record, err := svc.auth.ConsumeCode(ctx, issue(), client, testRedirectURI, verifier)
	require.NoError(t, err)
	assert.Equal(t, "S256", record.CodeChallengeMethod)
}
