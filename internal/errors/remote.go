package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"golang.org/x/oauth2"
)

// HTTPError is a non-2xx response from the repository REST API
type HTTPError struct {
	StatusCode int
	ErrorKey   string
	Message    string
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e.ErrorKey != "" {
		return fmt.Sprintf("http %d: %s (%s)", e.StatusCode, e.Message, e.ErrorKey)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// ClassifyRemoteError converts a failed repository call into an AppError
// carrying a stable code. Errors that already carry a code pass through.
func ClassifyRemoteError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if stderrors.Is(err, context.Canceled) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, "operation cancelled").
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeTimeout, "operation timed out").
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}

	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		status := http.StatusUnauthorized
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		logger.Warn("OAuth token refresh rejected",
			logging.F("httpStatus", status),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthExpired, "OAuth token could not be refreshed").
			WithHTTPStatus(status).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("suggestedAction", "refresh the account credentials").
			Build(), err)
	}

	var httpErr *HTTPError
	if !stderrors.As(err, &httpErr) {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var code string
	var retryable bool

	switch httpErr.StatusCode {
	case 400, 409, 422:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
	case 404:
		code = utils.ErrCodeNotFound
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		code = utils.ErrCodeRemoteService
		retryable = httpErr.StatusCode >= 500
	}

	logger.Error("API error classified",
		logging.F("httpStatus", httpErr.StatusCode),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", httpErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	message := httpErr.Message
	if message == "" {
		message = http.StatusText(httpErr.StatusCode)
	}
	builder := utils.NewCLIError(code, message).
		WithHTTPStatus(httpErr.StatusCode).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if httpErr.ErrorKey != "" {
		builder.WithContext("errorKey", httpErr.ErrorKey)
	}
	if len(reqCtx.NodeIDs) > 0 {
		builder.WithContext("nodeIds", reqCtx.NodeIDs)
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "refresh the account credentials")
	case utils.ErrCodeNotFound:
		builder.WithContext("suggestedAction", "verify the node still exists and is accessible")
	case utils.ErrCodeRateLimited:
		builder.WithContext("suggestedAction", "rate limit exceeded, retrying with backoff")
	}

	if httpErr.StatusCode >= 500 && httpErr.StatusCode <= 504 {
		builder.WithContext("serverError", true)
	}

	return utils.WrapAppError(builder.Build(), err)
}
