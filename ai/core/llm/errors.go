package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the provider answers without any choice or content block.
var ErrEmptyResponse = errors.New("empty response from LLM")

// TransientAPIError is a retryable provider failure: rate limiting, timeouts,
// 5xx responses and network faults.
type TransientAPIError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient %s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient %s API error: %v", e.Provider, e.Err)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// FatalAPIError is a non-retryable provider failure: malformed request,
// authentication or authorization failure, unknown model, empty response.
type FatalAPIError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *FatalAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fatal %s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fatal %s API error: %v", e.Provider, e.Err)
}

func (e *FatalAPIError) Unwrap() error { return e.Err }

// IsTransient reports whether err carries a TransientAPIError.
func IsTransient(err error) bool {
	var t *TransientAPIError
	return errors.As(err, &t)
}

// IsFatal reports whether err carries a FatalAPIError.
func IsFatal(err error) bool {
	var f *FatalAPIError
	return errors.As(err, &f)
}

// ClassifyError maps a raw provider error onto the transient/fatal taxonomy.
// Errors that are already classified and context cancellation are returned unchanged.
//
// Order: explicit status codes, then network faults, then timeouts, then
// message patterns. Anything unrecognized is fatal.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransient(err) || IsFatal(err) || errors.Is(err, context.Canceled) {
		return err
	}

	if status := statusCode(err); status > 0 {
		if isRetryableStatus(status) {
			return &TransientAPIError{Provider: provider, StatusCode: status, RetryAfter: retryAfterFor(status), Err: err}
		}
		return &FatalAPIError{Provider: provider, StatusCode: status, Err: err}
	}

	if isNetworkError(err) || isTimeoutError(err) {
		return &TransientAPIError{Provider: provider, Err: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "overloaded") {
		return &TransientAPIError{Provider: provider, StatusCode: http.StatusTooManyRequests, Err: err}
	}

	return &FatalAPIError{Provider: provider, Err: err}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	return 0
}

func isRetryableStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func retryAfterFor(status int) time.Duration {
	if status == http.StatusTooManyRequests {
		return 2 * time.Second
	}
	return 0
}

// isNetworkError checks if an error is network-related (transient).
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"temporary failure",
		"dial tcp",
		"unexpected eof",
		"connection lost",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if an error is timeout-related (transient).
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded")
}
