package availability

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/config"
	"salesflow/core/database"
	"salesflow/core/middleware"
	"salesflow/modules/availability/controller"
	"salesflow/modules/availability/repository"
	"salesflow/modules/availability/router"
	"salesflow/modules/availability/service"
	eventRepository "salesflow/modules/event/repository"
)

func Init(e *echo.Echo, db database.IDatabase, eventRepo eventRepository.EventRepository, cfg *config.Config, mw *middleware.Middleware) service.AvailabilityService {
	schedRepo := repository.NewScheduleRepository(db)
	svc := service.NewAvailabilityService(schedRepo, eventRepo, cfg)
	ctrl := controller.NewAvailabilityController(svc)
	router.NewAvailabilityRouter(ctrl).Setup(e, mw)
	return svc
}
