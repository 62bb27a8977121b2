package bootstrap

import (
	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/handlers"
	"github.com/scribehub/scribegate/internal/services"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	authorization *handlers.AuthorizationHandler
	token         *handlers.TokenHandler
	client        *handlers.ClientHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(
	cfg *config.Config,
	grantService *services.GrantService,
	tokenService *services.TokenService,
	clientService *services.ClientService,
	authorizationService *services.AuthorizationService,
) handlerSet {
	return handlerSet{
		authorization: handlers.NewAuthorizationHandler(authorizationService, cfg),
		token: handlers.NewTokenHandler(
			tokenService,
			authorizationService,
			clientService,
			grantService,
			cfg,
		),
		client: handlers.NewClientHandler(clientService),
	}
}
