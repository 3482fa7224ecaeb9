package controller

import (
	"net/http"
	"time"

	"salesflow/core/errors"
	"salesflow/core/logger"

	"github.com/labstack/echo/v4"
)

type (
	SuccessBody struct {
		Status    int       `json:"status"`
		Data      any       `json:"data,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}

	ErrorBody struct {
		Status    string           `json:"status"`
		Code      errors.ErrorCode `json:"code"`
		Message   string           `json:"message"`
		Details   any              `json:"details,omitempty"`
		Timestamp time.Time        `json:"timestamp"`
	}
)

// BaseController is embedded by module controllers for uniform responses.
type BaseController struct{}

func (BaseController) SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, SuccessBody{
		Status:    http.StatusOK,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (BaseController) CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, SuccessBody{
		Status:    http.StatusCreated,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (BaseController) Unauthorized(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, ErrorBody{
		Status:    "error",
		Code:      errors.ErrUnauthorized,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// NewErrorResponse builds an error for use outside controllers (middleware);
// echo's default error handler renders the body with the given status.
func NewErrorResponse(status int, code errors.ErrorCode, message string) error {
	return echo.NewHTTPError(status, ErrorBody{
		Status:    "error",
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// HTTPStatusFor maps an application error code to an HTTP status.
func HTTPStatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidInput, errors.ErrInvalidRequestData:
		return http.StatusBadRequest
	case errors.ErrUnauthorized, errors.ErrAuthExpired, errors.ErrSignatureInvalid:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrAlreadyExists, errors.ErrSlotConflict:
		return http.StatusConflict
	case errors.ErrProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (BaseController) ErrorResponse(c echo.Context, err error) error {
	httpStatus := http.StatusInternalServerError
	appCode := errors.ErrInternalServer
	msg := "internal server error"
	var details any

	if err != nil {
		if ae, ok := err.(*errors.AppError); ok && ae != nil {
			appCode = ae.Code
			if ae.Message != "" {
				msg = ae.Message
			}
			if ae.Details != nil {
				details = ae.Details
			}
			httpStatus = HTTPStatusFor(appCode)
		} else if err.Error() != "" {
			msg = err.Error()
		}
	}

	logger.Error("BaseController:ErrorResponse",
		"status", httpStatus,
		"code", appCode,
		"message", msg,
	)
	return c.JSON(httpStatus, ErrorBody{
		Status:    "error",
		Code:      appCode,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now(),
	})
}
