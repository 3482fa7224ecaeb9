package router

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/middleware"
	"salesflow/modules/event/controller"
)

type EventRouter struct {
	Controller *controller.EventController
}

func NewEventRouter(ctrl *controller.EventController) *EventRouter {
	return &EventRouter{Controller: ctrl}
}

func (r *EventRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	events := e.Group("/api/v1/events", mw.AuthMiddleware())
	events.POST("", r.Controller.Create)
	events.GET("", r.Controller.List)
	events.GET("/:id", r.Controller.Get)
	events.PUT("/:id/confirm", r.Controller.Confirm)
	events.PUT("/:id/complete", r.Controller.Complete)
	events.PUT("/:id/no-show", r.Controller.MarkNoShow)
	events.PUT("/:id/reschedule", r.Controller.Reschedule)
	events.DELETE("/:id", r.Controller.Cancel)
}
