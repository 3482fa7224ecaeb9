package router

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/middleware"
	"salesflow/modules/availability/controller"
)

type AvailabilityRouter struct {
	Controller *controller.AvailabilityController
}

func NewAvailabilityRouter(ctrl *controller.AvailabilityController) *AvailabilityRouter {
	return &AvailabilityRouter{Controller: ctrl}
}

func (r *AvailabilityRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1", mw.AuthMiddleware())
	v1.GET("/availability", r.Controller.GetAvailability)
	v1.GET("/availability/schedule", r.Controller.GetSchedule)
	v1.PUT("/availability/schedule", r.Controller.UpdateSchedule)
}
