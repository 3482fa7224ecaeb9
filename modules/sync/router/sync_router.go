package router

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/middleware"
	"salesflow/modules/sync/controller"
)

type SyncRouter struct {
	Controller *controller.SyncController
}

func NewSyncRouter(ctrl *controller.SyncController) *SyncRouter {
	return &SyncRouter{Controller: ctrl}
}

func (r *SyncRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1", mw.AuthMiddleware())
	v1.POST("/sync/integrations/:id/run", r.Controller.Run)
}
