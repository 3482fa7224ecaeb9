package controller

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"salesflow/core/controller"
	"salesflow/core/errors"
	"salesflow/core/middleware"
	"salesflow/modules/integration/dto"
	"salesflow/modules/integration/service"
)

type IntegrationController struct {
	controller.BaseController
	service service.IntegrationService
}

func NewIntegrationController(service service.IntegrationService) *IntegrationController {
	return &IntegrationController{service: service}
}

// Connect returns the provider consent URL for the authenticated user.
func (ctrl *IntegrationController) Connect(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing user identity")
	}
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	providerName := c.Param("provider")
	returnTo := c.QueryParam("return_to")

	authURL, appErr := ctrl.service.GetConnectURL(c.Request().Context(), companyID, userID, providerName, returnTo)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, dto.ConnectURLResponse{AuthURL: authURL})
}

// Callback is the OAuth redirect target. It is unauthenticated; identity
// comes from the signed-up state parameter validated against the stored nonce.
func (ctrl *IntegrationController) Callback(c echo.Context) error {
	providerName := c.Param("provider")
	code := c.QueryParam("code")
	rawState := c.QueryParam("state")

	if errMsg := c.QueryParam("error"); errMsg != "" {
		return ctrl.redirectWithStatus(c, "", "denied")
	}
	if code == "" || rawState == "" {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "missing code or state", nil))
	}

	returnTo, warn, appErr := ctrl.service.HandleCallback(c.Request().Context(), providerName, code, rawState)
	if appErr != nil {
		if returnTo == "" {
			return ctrl.ErrorResponse(c, appErr)
		}
		return ctrl.redirectWithStatus(c, returnTo, "error")
	}

	status := "connected"
	if warn != nil {
		status = "connected_polling_only"
	}
	return ctrl.redirectWithStatus(c, returnTo, status)
}

func (ctrl *IntegrationController) redirectWithStatus(c echo.Context, returnTo, status string) error {
	if returnTo == "" {
		return ctrl.SuccessResponse(c, map[string]string{"status": status})
	}
	u, err := url.Parse(returnTo)
	if err != nil {
		return ctrl.SuccessResponse(c, map[string]string{"status": status})
	}
	q := u.Query()
	q.Set("status", status)
	u.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, u.String())
}

func (ctrl *IntegrationController) List(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	integrations, appErr := ctrl.service.List(c.Request().Context(), companyID)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, dto.IntegrationListResponse{Integrations: integrations})
}

func (ctrl *IntegrationController) Disconnect(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing user identity")
	}
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	providerName := c.Param("provider")
	if appErr := ctrl.service.Disconnect(c.Request().Context(), companyID, userID, providerName); appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, map[string]string{"status": "disconnected"})
}
