package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantFatal     bool
		wantStatus    int
	}{
		{"api 429", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, true, false, 429},
		{"api 503", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}, true, false, 503},
		{"request 408", &openai.RequestError{HTTPStatusCode: http.StatusRequestTimeout, Err: errors.New("t")}, true, false, 408},
		{"api 401", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false, true, 401},
		{"api 403", &openai.APIError{HTTPStatusCode: http.StatusForbidden}, false, true, 403},
		{"wrapped 400", fmt.Errorf("call: %w", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}), false, true, 400},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connection refused"), true, false, 0},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true, false, 0},
		{"rate limit text", errors.New("Rate limit reached for model"), true, false, 429},
		{"unknown", errors.New("something odd"), false, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError("openai", tt.err)
			assert.Equal(t, tt.wantTransient, IsTransient(got))
			assert.Equal(t, tt.wantFatal, IsFatal(got))
			assert.ErrorIs(t, got, tt.err)

			var tr *TransientAPIError
			var fa *FatalAPIError
			switch {
			case errors.As(got, &tr):
				assert.Equal(t, tt.wantStatus, tr.StatusCode)
				assert.Equal(t, "openai", tr.Provider)
			case errors.As(got, &fa):
				assert.Equal(t, tt.wantStatus, fa.StatusCode)
			}
		})
	}
}

func TestClassifyError_PassThrough(t *testing.T) {
	assert.NoError(t, ClassifyError("x", nil))

	canceled := fmt.Errorf("wrapped: %w", context.Canceled)
	assert.Same(t, canceled, ClassifyError("x", canceled))

	already := &FatalAPIError{Provider: "x", Err: errors.New("bad")}
	assert.Same(t, already, ClassifyError("y", already))
}

func TestAPIErrorMessages(t *testing.T) {
	tr := &TransientAPIError{Provider: "deepseek", StatusCode: 429, Err: errors.New("busy")}
	assert.Equal(t, "transient deepseek API error (status 429): busy", tr.Error())

	fa := &FatalAPIError{Provider: "openai", Err: ErrEmptyResponse}
	assert.Equal(t, "fatal openai API error: empty response from LLM", fa.Error())
}
