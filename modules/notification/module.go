package notification

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/config"
	"salesflow/core/database"
	"salesflow/core/middleware"
	"salesflow/modules/notification/controller"
	"salesflow/modules/notification/repository"
	"salesflow/modules/notification/router"
	"salesflow/modules/notification/service"
)

func Init(e *echo.Echo, db database.IDatabase, cfg *config.Config, mw *middleware.Middleware) *service.NotificationService {
	repo := repository.NewNotificationRepository(db)
	svc := service.NewNotificationService(repo, cfg)
	ctrl := controller.NewNotificationController(svc)
	router.NewNotificationRouter(ctrl).Setup(e, mw)
	return svc
}
