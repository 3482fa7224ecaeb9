package controller

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"salesflow/core/controller"
	"salesflow/core/errors"
	"salesflow/core/middleware"
	"salesflow/modules/sync/service"
)

type SyncController struct {
	controller.BaseController
	service service.SyncService
}

func NewSyncController(service service.SyncService) *SyncController {
	return &SyncController{service: service}
}

// Run triggers an immediate reconciliation pass for one integration.
func (ctrl *SyncController) Run(c echo.Context) error {
	if _, ok := middleware.CompanyID(c); !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid integration id", err))
	}

	result, appErr := ctrl.service.RunSync(c.Request().Context(), id)
	if appErr != nil {
		if appErr.Code == errors.ErrPartialSync && result != nil {
			// Partial success still reports the counts alongside the errors.
			return ctrl.SuccessResponse(c, map[string]interface{}{
				"result":  result,
				"partial": true,
			})
		}
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, result)
}
