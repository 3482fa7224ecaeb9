package controller

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"salesflow/core/controller"
	"salesflow/core/errors"
	"salesflow/core/middleware"
	"salesflow/modules/availability/entity"
	"salesflow/modules/availability/service"
)

type AvailabilityController struct {
	controller.BaseController
	service service.AvailabilityService
}

func NewAvailabilityController(service service.AvailabilityService) *AvailabilityController {
	return &AvailabilityController{service: service}
}

// GetAvailability serves both query shapes: ?date=YYYY-MM-DD lists the day's
// slot grid, ?start_time=..&end_time=.. checks one proposed interval.
func (ctrl *AvailabilityController) GetAvailability(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	var userID *uuid.UUID
	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid user_id", err))
		}
		userID = &id
	}

	if date := c.QueryParam("date"); date != "" {
		slotMinutes := 0
		if v := c.QueryParam("slot_duration"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid slot_duration", err))
			}
			slotMinutes = n
		}

		slots, appErr := ctrl.service.GetDaySlots(c.Request().Context(), companyID, userID, date, slotMinutes)
		if appErr != nil {
			return ctrl.ErrorResponse(c, appErr)
		}
		return ctrl.SuccessResponse(c, map[string]interface{}{"date": date, "slots": slots, "count": len(slots)})
	}

	startRaw, endRaw := c.QueryParam("start_time"), c.QueryParam("end_time")
	if startRaw == "" || endRaw == "" {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "provide either date or start_time and end_time", nil))
	}
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid start_time timestamp", err))
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid end_time timestamp", err))
	}

	check, appErr := ctrl.service.CheckSlot(c.Request().Context(), companyID, userID, start, end)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, check)
}

func (ctrl *AvailabilityController) GetSchedule(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	sched, appErr := ctrl.service.GetSchedule(c.Request().Context(), companyID)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, sched)
}

func (ctrl *AvailabilityController) UpdateSchedule(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	var sched entity.CompanySchedule
	if err := c.Bind(&sched); err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid request body", err))
	}
	sched.CompanyID = companyID

	saved, appErr := ctrl.service.UpdateSchedule(c.Request().Context(), &sched)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, saved)
}
