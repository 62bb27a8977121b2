package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/scope"
	"github.com/scribehub/scribegate/internal/store"
	"github.com/scribehub/scribegate/internal/util"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientNameRequired  = errors.New("client name is required")
	ErrRedirectURIRequired = errors.New("at least one redirect_uri is required")
	ErrInvalidClientSecret = errors.New("invalid client secret")
)

// ClientService manages the registry of OAuth applications.
type ClientService struct {
	store        *store.Store
	auditService *AuditService
}

func NewClientService(s *store.Store, auditService *AuditService) *ClientService {
	return &ClientService{store: s, auditService: auditService}
}

type CreateClientRequest struct {
	Name         string
	Description  string
	TeamID       string
	CreatedBy    string
	RedirectURIs []string
	Scopes       string // space-separated; empty defaults to umbrella read/write
	Public       bool   // public clients get no secret and must use PKCE
	Published    bool
}

type UpdateClientRequest struct {
	Name         string
	Description  string
	RedirectURIs []string
	Scopes       string
	Published    bool
}

// ClientResponse wraps a client with the plaintext secret, populated only on
// creation and secret rotation.
type ClientResponse struct {
	*models.Client
	ClientSecretPlain string
}

func (s *ClientService) CreateClient(
	ctx context.Context,
	req CreateClientRequest,
) (*ClientResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrClientNameRequired
	}
	if len(req.RedirectURIs) == 0 {
		return nil, ErrRedirectURIRequired
	}

	scopes := strings.TrimSpace(req.Scopes)
	if scopes == "" {
		scopes = string(scope.Read) + " " + string(scope.Write)
	}
	parsed, err := scope.ParseList(scopes)
	if err != nil {
		return nil, err
	}
	scopes = scope.Join(scope.Normalize(parsed))

	clientID, err := generateClientID()
	if err != nil {
		return nil, err
	}

	client := &models.Client{
		ClientID:      clientID,
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		TeamID:        req.TeamID,
		CreatedBy:     req.CreatedBy,
		RedirectURIs:  req.RedirectURIs,
		ScopesAllowed: scopes,
		Published:     req.Published,
	}

	var secretPlain string
	if !req.Public {
		secretPlain, err = client.GenerateClientSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate client secret: %w", err)
		}
	}

	if err := s.store.CreateClient(client); err != nil {
		return nil, err
	}

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventClientCreated,
			Severity:     models.SeverityInfo,
			ActorUserID:  req.CreatedBy,
			ResourceType: models.ResourceClient,
			ResourceID:   client.ClientID,
			Action:       "OAuth client registered",
			Details: models.AuditDetails{
				"name":        client.Name,
				"team_id":     client.TeamID,
				"client_type": client.Type(),
				"scopes":      client.ScopesAllowed,
			},
			Success: true,
		})
	}

	return &ClientResponse{Client: client, ClientSecretPlain: secretPlain}, nil
}

func (s *ClientService) GetClient(clientID string) (*models.Client, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func (s *ClientService) ListClients(teamID string) ([]models.Client, error) {
	return s.store.ListClientsByTeam(teamID)
}

func (s *ClientService) UpdateClient(
	ctx context.Context,
	clientID, actorUserID string,
	req UpdateClientRequest,
) (*models.Client, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrClientNameRequired
	}
	if len(req.RedirectURIs) == 0 {
		return nil, ErrRedirectURIRequired
	}

	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrClientNotFound
	}

	// Empty scopes means "leave them alone"; an update never strips a client
	// down to no scopes at all
	scopes := client.ScopesAllowed
	if trimmed := strings.TrimSpace(req.Scopes); trimmed != "" {
		parsed, err := scope.ParseList(trimmed)
		if err != nil {
			return nil, err
		}
		scopes = scope.Join(scope.Normalize(parsed))
	}

	client.Name = strings.TrimSpace(req.Name)
	client.Description = strings.TrimSpace(req.Description)
	client.RedirectURIs = req.RedirectURIs
	client.ScopesAllowed = scopes
	client.Published = req.Published

	if err := s.store.UpdateClient(client); err != nil {
		return nil, err
	}

	if s.auditService != nil {
		s.auditService.Log(ctx, AuditLogEntry{
			EventType:    models.EventClientUpdated,
			Severity:     models.SeverityInfo,
			ActorUserID:  actorUserID,
			ResourceType: models.ResourceClient,
			ResourceID:   client.ClientID,
			Action:       "OAuth client updated",
			Details: models.AuditDetails{
				"name":   client.Name,
				"scopes": client.ScopesAllowed,
			},
			Success: true,
		})
	}

	return client, nil
}

// DeleteClient soft-deletes a registration. Outstanding grants keep working
// until revoked; the registry simply stops accepting new authorizations.
func (s *ClientService) DeleteClient(ctx context.Context, clientID, actorUserID string) error {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return ErrClientNotFound
	}

	if err := s.store.DeleteClient(clientID); err != nil {
		return err
	}

	if s.auditService != nil {
		_ = s.auditService.LogSync(ctx, AuditLogEntry{
			EventType:    models.EventClientDeleted,
			Severity:     models.SeverityWarning,
			ActorUserID:  actorUserID,
			ResourceType: models.ResourceClient,
			ResourceID:   clientID,
			Action:       "OAuth client deleted",
			Details:      models.AuditDetails{"name": client.Name},
			Success:      true,
		})
	}

	return nil
}

// RotateSecret replaces a confidential client's secret. The previous secret
// stops working immediately; the new plaintext is returned exactly once.
func (s *ClientService) RotateSecret(
	ctx context.Context,
	clientID, actorUserID string,
) (string, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return "", ErrClientNotFound
	}
	if client.IsPublic() {
		return "", ErrInvalidClientSecret
	}

	newSecret, err := client.GenerateClientSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}

	if err := s.store.UpdateClientSecret(clientID, client.ClientSecret); err != nil {
		return "", err
	}

	if s.auditService != nil {
		_ = s.auditService.LogSync(ctx, AuditLogEntry{
			EventType:    models.EventClientSecretRotated,
			Severity:     models.SeverityWarning,
			ActorUserID:  actorUserID,
			ResourceType: models.ResourceClient,
			ResourceID:   clientID,
			Action:       "Client secret rotated",
			Success:      true,
		})
	}

	return newSecret, nil
}

// AuthenticateClient verifies client credentials for the token endpoint.
// Public clients authenticate by identifier alone (possession is proven via
// PKCE); confidential clients must present their secret.
func (s *ClientService) AuthenticateClient(
	ctx context.Context,
	clientID, clientSecret string,
) (*models.Client, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		return nil, ErrClientNotFound
	}

	if client.IsPublic() {
		if clientSecret != "" {
			return nil, ErrInvalidClientSecret
		}
		return client, nil
	}

	if !client.ValidateClientSecret([]byte(clientSecret)) {
		if s.auditService != nil {
			s.auditService.Log(ctx, AuditLogEntry{
				EventType:    models.EventClientAuthFailed,
				Severity:     models.SeverityWarning,
				ResourceType: models.ResourceClient,
				ResourceID:   clientID,
				Action:       "Client authentication failed",
				Success:      false,
				ErrorMessage: "invalid client secret",
			})
		}
		return nil, ErrInvalidClientSecret
	}

	return client, nil
}

// generateClientID mints a prefixed random client identifier.
func generateClientID() (string, error) {
	random, err := util.CryptoRandomString(24)
	if err != nil {
		return "", fmt.Errorf("failed to generate client id: %w", err)
	}
	return "sgc_" + random, nil
}
