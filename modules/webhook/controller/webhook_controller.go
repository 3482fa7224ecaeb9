package controller

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"salesflow/core/controller"
	"salesflow/core/errors"
	"salesflow/modules/webhook/service"
)

type WebhookController struct {
	controller.BaseController
	service service.WebhookService
}

func NewWebhookController(service service.WebhookService) *WebhookController {
	return &WebhookController{service: service}
}

// Receive is the unauthenticated provider callback. Authenticity comes from
// the per-provider signature, verified in the service.
func (ctrl *WebhookController) Receive(c echo.Context) error {
	providerName := c.Param("provider")

	// Microsoft Graph validates new subscriptions with a handshake that must
	// be echoed back as plain text.
	if token := c.QueryParam("validationToken"); token != "" {
		return c.String(http.StatusOK, token)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "failed to read body", err))
	}

	outcome, appErr := ctrl.service.HandleWebhook(c.Request().Context(), providerName, body, c.Request().Header)
	if appErr != nil && outcome == service.OutcomeRejected {
		return ctrl.ErrorResponse(c, appErr)
	}
	// Skipped deliveries are still acknowledged; retrying would not help.
	return ctrl.SuccessResponse(c, map[string]string{"status": outcome})
}
