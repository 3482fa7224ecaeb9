package sync

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/cache"
	"salesflow/core/config"
	"salesflow/core/database"
	"salesflow/core/middleware"
	"salesflow/core/queue"
	eventRepository "salesflow/modules/event/repository"
	integrationRepository "salesflow/modules/integration/repository"
	integrationService "salesflow/modules/integration/service"
	"salesflow/modules/provider"
	"salesflow/modules/sync/controller"
	"salesflow/modules/sync/router"
	"salesflow/modules/sync/service"
	"salesflow/modules/sync/worker"
)

func Init(
	e *echo.Echo,
	db database.IDatabase,
	eventRepo eventRepository.EventRepository,
	integRepo integrationRepository.IntegrationRepository,
	integSvc integrationService.IntegrationService,
	adapters *provider.Factory,
	c cache.Cache,
	q *queue.Queue,
	cfg *config.Config,
	mw *middleware.Middleware,
) (service.SyncService, error) {
	svc := service.NewSyncService(eventRepo, integRepo, integSvc, adapters, c, cfg)
	ctrl := controller.NewSyncController(svc)
	router.NewSyncRouter(ctrl).Setup(e, mw)

	if q != nil {
		w := worker.NewWorker(q, svc, integSvc, integRepo)
		if err := w.Register(); err != nil {
			return nil, err
		}
	}
	return svc, nil
}
