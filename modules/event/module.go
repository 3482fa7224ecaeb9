package event

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/database"
	"salesflow/core/middleware"
	"salesflow/modules/event/controller"
	"salesflow/modules/event/repository"
	"salesflow/modules/event/router"
	"salesflow/modules/event/service"
	integrationRepository "salesflow/modules/integration/repository"
	integrationService "salesflow/modules/integration/service"
	"salesflow/modules/provider"
)

func Init(
	e *echo.Echo,
	db database.IDatabase,
	integRepo integrationRepository.IntegrationRepository,
	integSvc integrationService.IntegrationService,
	adapters *provider.Factory,
	notifier service.Notifier,
	mw *middleware.Middleware,
) (service.EventService, repository.EventRepository) {
	repo := repository.NewEventRepository(db)
	svc := service.NewEventService(repo, integRepo, integSvc, adapters, notifier)
	ctrl := controller.NewEventController(svc)
	router.NewEventRouter(ctrl).Setup(e, mw)
	return svc, repo
}
