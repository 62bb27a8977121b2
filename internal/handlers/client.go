package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/scribehub/scribegate/internal/models"
	"github.com/scribehub/scribegate/internal/scope"
	"github.com/scribehub/scribegate/internal/services"

	"github.com/gin-gonic/gin"
)

// ClientHandler exposes the client registry API used by the developer
// settings pages.
type ClientHandler struct {
	clientService *services.ClientService
}

func NewClientHandler(cs *services.ClientService) *ClientHandler {
	return &ClientHandler{clientService: cs}
}

type createClientRequest struct {
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	RedirectURIs []string `json:"redirect_uris" binding:"required"`
	Scopes       string   `json:"scopes"`
	Public       bool     `json:"public"`
	Published    bool     `json:"published"`
}

type updateClientRequest struct {
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	RedirectURIs []string `json:"redirect_uris" binding:"required"`
	Scopes       string   `json:"scopes" binding:"required"`
	Published    bool     `json:"published"`
}

type clientView struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"` // only on create/rotate
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Type         string    `json:"type"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       string    `json:"scopes"`
	Published    bool      `json:"published"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

func newClientView(client *models.Client, secretPlain string) clientView {
	return clientView{
		ClientID:     client.ClientID,
		ClientSecret: secretPlain,
		Name:         client.Name,
		Description:  client.Description,
		Type:         client.Type(),
		RedirectURIs: client.RedirectURIs,
		Scopes:       client.ScopesAllowed,
		Published:    client.Published,
		CreatedBy:    client.CreatedBy,
		CreatedAt:    client.CreatedAt,
	}
}

// Create registers a client (POST /api/clients). The secret appears in this
// response and never again.
func (h *ClientHandler) Create(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.clientService.CreateClient(c.Request.Context(), services.CreateClientRequest{
		Name:         req.Name,
		Description:  req.Description,
		TeamID:       c.GetString("team_id"),
		CreatedBy:    c.GetString("user_id"),
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		Public:       req.Public,
		Published:    req.Published,
	})
	if err != nil {
		h.writeClientError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newClientView(resp.Client, resp.ClientSecretPlain))
}

// List returns the clients owned by the caller's team (GET /api/clients).
func (h *ClientHandler) List(c *gin.Context) {
	clients, err := h.clientService.ListClients(c.GetString("team_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list clients"})
		return
	}

	views := make([]clientView, 0, len(clients))
	for i := range clients {
		views = append(views, newClientView(&clients[i], ""))
	}
	c.JSON(http.StatusOK, gin.H{"clients": views})
}

// Get returns one client (GET /api/clients/:client_id).
func (h *ClientHandler) Get(c *gin.Context) {
	client, _ := h.getOwnedClient(c)
	if client == nil {
		return
	}
	c.JSON(http.StatusOK, newClientView(client, ""))
}

// Update modifies a registration (PUT /api/clients/:client_id).
func (h *ClientHandler) Update(c *gin.Context) {
	client, _ := h.getOwnedClient(c)
	if client == nil {
		return
	}

	var req updateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.clientService.UpdateClient(
		c.Request.Context(), client.ClientID, c.GetString("user_id"),
		services.UpdateClientRequest{
			Name:         req.Name,
			Description:  req.Description,
			RedirectURIs: req.RedirectURIs,
			Scopes:       req.Scopes,
			Published:    req.Published,
		},
	)
	if err != nil {
		h.writeClientError(c, err)
		return
	}

	c.JSON(http.StatusOK, newClientView(updated, ""))
}

// Delete soft-deletes a registration (DELETE /api/clients/:client_id).
func (h *ClientHandler) Delete(c *gin.Context) {
	client, _ := h.getOwnedClient(c)
	if client == nil {
		return
	}

	if err := h.clientService.DeleteClient(
		c.Request.Context(), client.ClientID, c.GetString("user_id"),
	); err != nil {
		h.writeClientError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RotateSecret replaces a confidential client's secret
// (POST /api/clients/:client_id/rotate-secret).
func (h *ClientHandler) RotateSecret(c *gin.Context) {
	client, _ := h.getOwnedClient(c)
	if client == nil {
		return
	}

	secret, err := h.clientService.RotateSecret(
		c.Request.Context(), client.ClientID, c.GetString("user_id"),
	)
	if err != nil {
		h.writeClientError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id":     client.ClientID,
		"client_secret": secret,
	})
}

// getOwnedClient loads the path client and enforces team ownership. Writes
// the error response and returns nil when the client is missing or foreign.
func (h *ClientHandler) getOwnedClient(c *gin.Context) (*models.Client, error) {
	client, err := h.clientService.GetClient(c.Param("client_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return nil, err
	}
	if teamID := c.GetString("team_id"); teamID != "" && client.TeamID != teamID {
		// Same response as missing: ownership is not probeable
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
		return nil, services.ErrClientNotFound
	}
	return client, nil
}

func (h *ClientHandler) writeClientError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrClientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
	case errors.Is(err, services.ErrClientNameRequired),
		errors.Is(err, services.ErrRedirectURIRequired),
		errors.Is(err, scope.ErrInvalidScope):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidClientSecret):
		c.JSON(http.StatusBadRequest, gin.H{"error": "public clients have no secret"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
