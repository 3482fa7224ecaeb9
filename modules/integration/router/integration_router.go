package router

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/middleware"
	"salesflow/modules/integration/controller"
)

type IntegrationRouter struct {
	Controller *controller.IntegrationController
}

func NewIntegrationRouter(ctrl *controller.IntegrationController) *IntegrationRouter {
	return &IntegrationRouter{Controller: ctrl}
}

func (r *IntegrationRouter) Setup(e *echo.Echo, mw *middleware.Middleware) {
	v1 := e.Group("/api/v1")

	// OAuth redirect target comes back from the provider without a session.
	v1.GET("/integrations/:provider/callback", r.Controller.Callback)

	priv := v1.Group("/integrations", mw.AuthMiddleware())
	priv.GET("", r.Controller.List)
	priv.GET("/:provider/connect", r.Controller.Connect)
	priv.DELETE("/:provider", r.Controller.Disconnect)
}
