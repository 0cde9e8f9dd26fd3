package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/errors"
	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/types"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/google/uuid"
)

// Client talks to one repository's public REST API with retry logic
type Client struct {
	http       *http.Client
	coreBase   string
	searchBase string
	account    string
	root       *types.Node
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// ClientOptions configures a Client
type ClientOptions struct {
	Account      string
	MaxRetries   int
	RetryDelayMs int
	Logger       logging.Logger
}

// NewClient creates a client for the server at serverURL. httpClient must
// already authenticate its requests.
func NewClient(httpClient *http.Client, serverURL string, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	base := strings.TrimRight(serverURL, "/")
	return &Client{
		http:       httpClient,
		coreBase:   base + utils.CoreAPIPath,
		searchBase: base + utils.SearchAPIPath,
		account:    opts.Account,
		maxRetries: opts.MaxRetries,
		retryDelay: time.Duration(opts.RetryDelayMs) * time.Millisecond,
		logger:     logger,
	}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(account string, requestType types.RequestType, nodeIDs ...string) *types.RequestContext {
	if nodeIDs == nil {
		nodeIDs = []string{}
	}
	return &types.RequestContext{
		Account:     account,
		NodeIDs:     nodeIDs,
		RequestType: requestType,
		TraceID:     uuid.New().String(),
	}
}

func (c *Client) requestContext(ctx context.Context, requestType types.RequestType, nodeIDs ...string) *types.RequestContext {
	reqCtx := NewRequestContext(c.account, requestType, nodeIDs...)
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		reqCtx.TraceID = traceID
	}
	return reqCtx
}

// ExecuteWithRetry executes an API call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("account", reqCtx.Account),
		logging.F("nodeIds", reqCtx.NodeIDs),
	)

	start := time.Now()

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying API operation",
				logging.F("attempt", attempt),
				logging.F("maxRetries", client.maxRetries),
			)
		}

		result, lastErr = fn()
		if lastErr == nil {
			logger.Debug("API operation completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !isRetryable(lastErr) {
			logger.Warn("API operation failed (non-retryable)",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, classifyError(lastErr, reqCtx, client.logger)
		}

		if attempt < client.maxRetries {
			delay := calculateBackoff(client.retryDelay, attempt, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, classifyError(ctx.Err(), reqCtx, client.logger)
			case <-time.After(delay):
			}
		}
	}

	logger.Error("API operation failed after max retries",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	return result, classifyError(lastErr, reqCtx, client.logger)
}

// isRetryable checks if an error is retryable
func isRetryable(err error) bool {
	if httpErr, ok := err.(*errors.HTTPError); ok {
		switch httpErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// calculateBackoff calculates the retry delay with exponential backoff
func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	maxDelay := time.Duration(utils.MaxRetryDelayMs) * time.Millisecond

	if httpErr, ok := err.(*errors.HTTPError); ok && httpErr.Header != nil {
		if retryAfter := httpErr.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				delay := time.Duration(seconds) * time.Second
				if delay > maxDelay {
					return maxDelay
				}
				return delay
			}
			if when, err := http.ParseTime(retryAfter); err == nil {
				delay := time.Until(when)
				if delay > maxDelay {
					return maxDelay
				}
				if delay > 0 {
					return delay
				}
			}
		}
	}

	// Exponential backoff: base * 2^attempt
	delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add jitter (±25% of delay)
	jitterRange := delay / 4
	if jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
		delay = delay + jitter
	}

	if delay < 0 {
		delay = baseDelay
	}

	return delay
}

// classifyError converts API errors to CLI errors
func classifyError(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	return errors.ClassifyRemoteError("repository", err, reqCtx, logger)
}

// send performs one HTTP request. Any non-2xx status is returned as an
// *errors.HTTPError with the body consumed; on success the caller owns the
// response body.
func (c *Client) send(ctx context.Context, method, rawURL string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeHTTPError(resp)
}

func decodeHTTPError(resp *http.Response) *errors.HTTPError {
	httpErr := &errors.HTTPError{StatusCode: resp.StatusCode, Header: resp.Header}
	var payload errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.BriefSummary != "" {
		httpErr.Message = payload.Error.BriefSummary
		httpErr.ErrorKey = payload.Error.ErrorKey
	} else {
		httpErr.Message = http.StatusText(resp.StatusCode)
	}
	return httpErr
}

// doJSON sends a request with retry and decodes the JSON response into out
func (c *Client) doJSON(ctx context.Context, reqCtx *types.RequestContext, method, rawURL string, body, out interface{}) error {
	_, err := ExecuteWithRetry(ctx, c, reqCtx, func() (struct{}, error) {
		resp, err := c.send(ctx, method, rawURL, body)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return struct{}{}, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, fmt.Errorf("decode response: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// stream opens a response body with retry; the caller must close it
func (c *Client) stream(ctx context.Context, reqCtx *types.RequestContext, rawURL string) (int64, io.ReadCloser, error) {
	resp, err := ExecuteWithRetry(ctx, c, reqCtx, func() (*http.Response, error) {
		return c.send(ctx, http.MethodGet, rawURL, nil)
	})
	if err != nil {
		return 0, nil, err
	}
	return resp.ContentLength, resp.Body, nil
}

func (c *Client) coreURL(path string, query url.Values) string {
	u := c.coreBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// RootFolder returns the repository root resolved at connect time
func (c *Client) RootFolder() *types.Node {
	return c.root
}

// Account returns the account name the client was created for
func (c *Client) Account() string {
	return c.account
}
