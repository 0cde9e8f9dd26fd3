package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"golang.org/x/oauth2"
)

func TestClassifyRemoteError(t *testing.T) {
	reqCtx := &types.RequestContext{Account: "alice", RequestType: types.RequestTypeList, TraceID: "trace-1"}
	logger := logging.NewNoOpLogger()

	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{"bad request", &HTTPError{StatusCode: 400, Message: "bad"}, utils.ErrCodeInvalidArgument, false},
		{"unauthorized", &HTTPError{StatusCode: 401}, utils.ErrCodeAuthExpired, false},
		{"forbidden", &HTTPError{StatusCode: 403}, utils.ErrCodePermissionDenied, false},
		{"not found", &HTTPError{StatusCode: 404}, utils.ErrCodeNotFound, false},
		{"conflict", &HTTPError{StatusCode: 409, ErrorKey: "framework.exception.NameClash"}, utils.ErrCodeInvalidArgument, false},
		{"rate limited", &HTTPError{StatusCode: 429}, utils.ErrCodeRateLimited, true},
		{"server error", &HTTPError{StatusCode: 503}, utils.ErrCodeNetworkError, true},
		{"other", &HTTPError{StatusCode: 418}, utils.ErrCodeRemoteService, false},
		{"wrapped", fmt.Errorf("list children: %w", &HTTPError{StatusCode: 404}), utils.ErrCodeNotFound, false},
		{"transport", stderrors.New("connection reset"), utils.ErrCodeNetworkError, true},
		{"cancelled", context.Canceled, utils.ErrCodeCancelled, false},
		{"deadline", context.DeadlineExceeded, utils.ErrCodeTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyRemoteError("core", tt.err, reqCtx, logger)
			cliErr := utils.AsCLIError(err)
			if cliErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", cliErr.Code, tt.wantCode)
			}
			if cliErr.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", cliErr.Retryable, tt.retryable)
			}
			if !stderrors.Is(err, tt.err) {
				t.Errorf("classified error does not wrap the original")
			}
		})
	}
}

func TestClassifyRemoteError_PassesThroughAppErrors(t *testing.T) {
	orig := utils.NotFound("n1", "no content")
	err := ClassifyRemoteError("core", orig, &types.RequestContext{}, logging.NewNoOpLogger())
	if err != error(orig) {
		t.Errorf("expected AppError to pass through unchanged, got %v", err)
	}
}

func TestClassifyRemoteError_Nil(t *testing.T) {
	if err := ClassifyRemoteError("core", nil, &types.RequestContext{}, logging.NewNoOpLogger()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestClassifyRemoteError_TokenRefreshRejected(t *testing.T) {
	err := ClassifyRemoteError("core", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, &types.RequestContext{}, logging.NewNoOpLogger())
	if !utils.IsCode(err, utils.ErrCodeAuthExpired) {
		t.Errorf("expected AUTH_EXPIRED, got %v", err)
	}
}
