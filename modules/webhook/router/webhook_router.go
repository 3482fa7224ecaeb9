package router

import (
	"github.com/labstack/echo/v4"

	"salesflow/modules/webhook/controller"
)

type WebhookRouter struct {
	Controller *controller.WebhookController
}

func NewWebhookRouter(ctrl *controller.WebhookController) *WebhookRouter {
	return &WebhookRouter{Controller: ctrl}
}

func (r *WebhookRouter) Setup(e *echo.Echo) {
	e.POST("/api/v1/webhooks/:provider", r.Controller.Receive)
}
