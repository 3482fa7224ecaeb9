package integration

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/config"
	"salesflow/core/database"
	"salesflow/core/middleware"
	"salesflow/modules/integration/controller"
	"salesflow/modules/integration/repository"
	"salesflow/modules/integration/router"
	"salesflow/modules/integration/service"
	"salesflow/modules/provider"
)

// Init wires the integration registry and returns the service for modules
// that need token refresh or integration lookups.
func Init(e *echo.Echo, db database.IDatabase, adapters *provider.Factory, cfg *config.Config, mw *middleware.Middleware) (service.IntegrationService, repository.IntegrationRepository) {
	repo := repository.NewIntegrationRepository(db)
	stateRepo := repository.NewOAuthStateRepository(db)
	svc := service.NewIntegrationService(repo, stateRepo, adapters, cfg)
	ctrl := controller.NewIntegrationController(svc)
	router.NewIntegrationRouter(ctrl).Setup(e, mw)
	return svc, repo
}
