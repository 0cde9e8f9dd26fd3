package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/ecmdocs/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired       = 10
	ExitAuthExpired        = 11
	ExitSessionUnavailable = 12
	// Node errors (20-29)
	ExitNotFound         = 20
	ExitPermissionDenied = 21
	// Network errors (30-39)
	ExitNetworkError  = 30
	ExitTimeout       = 31
	ExitRateLimited   = 32
	ExitRemoteService = 33
	ExitCancelled     = 34
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired       = "AUTH_REQUIRED"
	ErrCodeAuthExpired        = "AUTH_EXPIRED"
	ErrCodeSessionUnavailable = "SESSION_UNAVAILABLE"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeNetworkError       = "NETWORK_ERROR"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeRemoteService      = "REMOTE_SERVICE_ERROR"
	ErrCodeCancelled          = "CANCELLED"
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeUnknown            = "UNKNOWN"
)

// MsgRefreshRequired is shown when no session can be established
const MsgRefreshRequired = "Refresh required."

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:       ExitAuthRequired,
		ErrCodeAuthExpired:        ExitAuthExpired,
		ErrCodeSessionUnavailable: ExitSessionUnavailable,
		ErrCodeNotFound:           ExitNotFound,
		ErrCodePermissionDenied:   ExitPermissionDenied,
		ErrCodeNetworkError:       ExitNetworkError,
		ErrCodeTimeout:            ExitTimeout,
		ErrCodeRateLimited:        ExitRateLimited,
		ErrCodeRemoteService:      ExitRemoteService,
		ErrCodeCancelled:          ExitCancelled,
		ErrCodeInvalidArgument:    ExitInvalidArgument,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps cause reachable through errors.Is/As
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code == code
	}
	return false
}

// AsCLIError extracts the CLIError from err, classifying unknown errors
func AsCLIError(err error) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return NewCLIError(ErrCodeUnknown, err.Error()).Build()
}

// UserMessage is the text attached to an errored listing result
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.CLIError.Code == ErrCodeSessionUnavailable {
			return MsgRefreshRequired
		}
		return "Error : " + appErr.CLIError.Message
	}
	return "Error : " + err.Error()
}

// SessionUnavailable builds the error returned when no session can be used
func SessionUnavailable(account string) *AppError {
	b := NewCLIError(ErrCodeSessionUnavailable, MsgRefreshRequired)
	if account != "" {
		b.WithContext("account", account)
	}
	return NewAppError(b.Build())
}

// NotFound builds the "no content" error for open and thumbnail requests
func NotFound(id, message string) *AppError {
	return NewAppError(NewCLIError(ErrCodeNotFound, message).WithContext("id", id).Build())
}
