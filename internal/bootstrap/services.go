package bootstrap

import (
	"github.com/scribehub/scribegate/internal/config"
	"github.com/scribehub/scribegate/internal/metrics"
	"github.com/scribehub/scribegate/internal/services"
	"github.com/scribehub/scribegate/internal/store"
)

// initializeServices creates all business logic services
func initializeServices(
	cfg *config.Config,
	db *store.Store,
	auditService *services.AuditService,
	recorder metrics.Recorder,
) (*services.GrantService, *services.TokenService, *services.ClientService, *services.AuthorizationService) {
	// Grant service first: both the token and authorization services cascade
	// revocations through it
	grantService := services.NewGrantService(db, auditService, recorder)
	tokenService := services.NewTokenService(db, cfg, grantService, auditService, recorder)
	clientService := services.NewClientService(db, auditService)
	authorizationService := services.NewAuthorizationService(
		db,
		cfg,
		grantService,
		auditService,
		recorder,
	)

	return grantService, tokenService, clientService, authorizationService
}
