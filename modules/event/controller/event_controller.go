package controller

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"salesflow/core/controller"
	"salesflow/core/errors"
	"salesflow/core/middleware"
	"salesflow/modules/event/dto"
	"salesflow/modules/event/entity"
	"salesflow/modules/event/repository"
	"salesflow/modules/event/service"
)

type EventController struct {
	controller.BaseController
	service service.EventService
}

func NewEventController(service service.EventService) *EventController {
	return &EventController{service: service}
}

func (ctrl *EventController) Create(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing user identity")
	}
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	var req dto.CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid request body", err))
	}

	ev, appErr := ctrl.service.Create(c.Request().Context(), companyID, userID, &req)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.CreatedResponse(c, ev)
}

func (ctrl *EventController) Get(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid event id", err))
	}

	ev, appErr := ctrl.service.Get(c.Request().Context(), companyID, id)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, ev)
}

func (ctrl *EventController) List(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}

	filter := repository.ListFilter{
		Status:    c.QueryParam("status"),
		EventType: c.QueryParam("event_type"),
		Source:    c.QueryParam("source"),
	}
	if filter.Source != "" && !entity.IsValidSource(filter.Source) {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "unknown source", nil))
	}
	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid user_id", err))
		}
		filter.UserID = &id
	}
	if v := c.QueryParam("contact_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid contact_id", err))
		}
		filter.ContactID = &id
	}
	if v := c.QueryParam("start_date"); v != "" {
		t, _, err := parseDateOrTimestamp(v)
		if err != nil {
			return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid start_date", err))
		}
		filter.From = &t
	}
	if v := c.QueryParam("end_date"); v != "" {
		t, dateOnly, err := parseDateOrTimestamp(v)
		if err != nil {
			return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid end_date", err))
		}
		if dateOnly {
			// a bare end date covers the whole day
			t = t.AddDate(0, 0, 1)
		}
		filter.To = &t
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid limit", err))
		}
		filter.Limit = n
	}

	events, appErr := ctrl.service.List(c.Request().Context(), companyID, filter)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, map[string]interface{}{"events": events, "count": len(events)})
}

func (ctrl *EventController) Confirm(c echo.Context) error {
	return ctrl.simpleTransition(c, ctrl.service.Confirm)
}

func (ctrl *EventController) Complete(c echo.Context) error {
	return ctrl.simpleTransition(c, ctrl.service.Complete)
}

func (ctrl *EventController) Cancel(c echo.Context) error {
	return ctrl.simpleTransition(c, ctrl.service.Cancel)
}

func (ctrl *EventController) MarkNoShow(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid event id", err))
	}

	var req dto.MarkNoShowRequest
	if err := c.Bind(&req); err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid request body", err))
	}

	ev, retry, appErr := ctrl.service.MarkNoShow(c.Request().Context(), companyID, id, &req)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	resp := map[string]interface{}{"event": ev}
	if retry != nil {
		resp["retry_event"] = retry
	}
	return ctrl.SuccessResponse(c, resp)
}

func (ctrl *EventController) Reschedule(c echo.Context) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid event id", err))
	}

	var req dto.RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid request body", err))
	}

	ev, appErr := ctrl.service.Reschedule(c.Request().Context(), companyID, id, &req)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, ev)
}

// parseDateOrTimestamp accepts either RFC3339 or a bare YYYY-MM-DD day.
func parseDateOrTimestamp(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", v)
	return t, err == nil, err
}

func (ctrl *EventController) simpleTransition(
	c echo.Context,
	fn func(ctx context.Context, companyID, id uuid.UUID) (*entity.CalendarEvent, *errors.AppError),
) error {
	companyID, ok := middleware.CompanyID(c)
	if !ok {
		return ctrl.Unauthorized(c, "missing company identity")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ctrl.ErrorResponse(c, errors.NewAppError(errors.ErrInvalidInput, "invalid event id", err))
	}

	ev, appErr := fn(c.Request().Context(), companyID, id)
	if appErr != nil {
		return ctrl.ErrorResponse(c, appErr)
	}
	return ctrl.SuccessResponse(c, ev)
}
