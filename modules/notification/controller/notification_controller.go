package controller

import (
	"github.com/labstack/echo/v4"

	"salesflow/core/controller"
	"salesflow/core/errors"
	"salesflow/core/middleware"
	"salesflow/core/params"
	"salesflow/modules/notification/dto"
	"salesflow/modules/notification/service"
)

type NotificationController struct {
	controller.BaseController
	service *service.NotificationService
}

func NewNotificationController(service *service.NotificationService) *NotificationController {
	return &NotificationController{service: service}
}

func (ctrl *NotificationController) GetMyNotifications(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing user identity")
	}

	result, err := ctrl.service.GetMyNotifications(c.Request().Context(), userID, params.FromContext(c))
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInternalServer, "failed to get notifications", err))
	}
	return ctrl.SuccessResponse(c, result)
}

func (ctrl *NotificationController) MarkAsRead(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing user identity")
	}

	var req dto.MarkAsReadRequest
	if err := c.Bind(&req); err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid request body", err))
	}

	if err := ctrl.service.MarkAsRead(c.Request().Context(), userID, req.IDs); err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInternalServer, "failed to mark as read", err))
	}
	return ctrl.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (ctrl *NotificationController) MarkAllAsRead(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing user identity")
	}

	if err := ctrl.service.MarkAllAsRead(c.Request().Context(), userID); err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInternalServer, "failed to mark all as read", err))
	}
	return ctrl.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (ctrl *NotificationController) CountUnread(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing user identity")
	}

	count, err := ctrl.service.CountUnread(c.Request().Context(), userID)
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInternalServer, "failed to count unread", err))
	}
	return ctrl.SuccessResponse(c, map[string]int{"count": count})
}
