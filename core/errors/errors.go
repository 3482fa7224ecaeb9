package errors

import "fmt"

type ErrorCode string

const (
	// Generic codes
	ErrInternalServer     ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrInvalidRequestData ErrorCode = "INVALID_REQUEST_DATA"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrAlreadyExists      ErrorCode = "ALREADY_EXISTS"

	// Calendar sync taxonomy
	ErrAuthExpired         ErrorCode = "AUTH_EXPIRED"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrSignatureInvalid    ErrorCode = "SIGNATURE_INVALID"
	ErrSlotConflict        ErrorCode = "SLOT_CONFLICT"
	ErrPartialSync         ErrorCode = "PARTIAL_SYNC_FAILURE"
)

// AppError is the application-level error carried between layers. Code is
// mapped to an HTTP status at the controller boundary only.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	// Details carries structured context (e.g. the conflicting event id for
	// ErrSlotConflict) that controllers may surface to clients.
	Details map[string]any
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on the code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsCode reports whether err is an *AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Code == code
}

// Retryable reports whether the error class may be retried automatically.
// Only transient provider failures qualify; AuthExpired and SignatureInvalid
// always require external action.
func Retryable(err error) bool {
	return IsCode(err, ErrProviderUnavailable)
}

// Warning is a typed non-fatal result for best-effort side effects (webhook
// subscription creation, remote cancellation). Callers surface it as degraded
// status instead of swallowing the information.
type Warning struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

func NewWarning(op, reason string) *Warning {
	return &Warning{Op: op, Reason: reason}
}

func (w *Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Op, w.Reason)
}
