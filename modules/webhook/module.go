package webhook

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/cache"
	"salesflow/core/config"
	"salesflow/core/database"
	integrationRepository "salesflow/modules/integration/repository"
	integrationService "salesflow/modules/integration/service"
	"salesflow/modules/provider"
	syncService "salesflow/modules/sync/service"
	"salesflow/modules/webhook/controller"
	"salesflow/modules/webhook/router"
	"salesflow/modules/webhook/service"
)

func Init(
	e *echo.Echo,
	db database.IDatabase,
	integRepo integrationRepository.IntegrationRepository,
	integSvc integrationService.IntegrationService,
	syncSvc syncService.SyncService,
	adapters *provider.Factory,
	c cache.Cache,
	cfg *config.Config,
) service.WebhookService {
	svc := service.NewWebhookService(integRepo, integSvc, syncSvc, adapters, c, cfg)
	ctrl := controller.NewWebhookController(svc)
	router.NewWebhookRouter(ctrl).Setup(e)
	return svc
}
