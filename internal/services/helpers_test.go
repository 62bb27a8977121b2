package services

import (
	"testing"
	"time"

	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *store.Store {
	// Use in-memory SQLite database for testing
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		AuthCodeExpiration:     10 * time.Minute,
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 1440 * time.Hour,
	}
}

// testServices wires the service graph against one store, with audit and
// metrics disabled.
type testServices struct {
	store  *store.Store
	grants *GrantService
	tokens *TokenService
	auth   *AuthorizationService
}

func newTestServices(t *testing.T) *testServices {
	s := setupTestStore(t)
	cfg := testConfig()
	grants := NewGrantService(s, nil, nil)
	tokens := NewTokenService(s, cfg, grants, nil, nil)
	auth := NewAuthorizationService(s, cfg, grants, nil, nil)
	return &testServices{store: s, grants: grants, tokens: tokens, auth: auth}
}

// createTestClient registers a client and returns it along with the plaintext
// secret (empty for public clients).
func createTestClient(t *testing.T, s *store.Store, public bool) (*models.Client, string) {
	client := &models.Client{
		ClientID:      "sgc_" + uuid.NewString(),
		Name:          "Test Client",
		TeamID:        uuid.NewString(),
		CreatedBy:     uuid.NewString(),
		RedirectURIs:  models.StringArray{"https://app.example.com/callback"},
		ScopesAllowed: "documents.read collections.read documents.write",
	}

	var secret string
	if !public {
		var err error
		secret, err = client.GenerateClientSecret()
		require.NoError(t, err)
	}

	require.NoError(t, s.CreateClient(client))
	return client, secret
}
