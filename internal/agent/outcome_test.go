package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

type statusOnlyErr struct{ code int }

func (e statusOnlyErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e statusOnlyErr) HTTPStatusCode() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSuccess},
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, OutcomeRetryable},
		{"service quota", &smithy.GenericAPIError{Code: "ServiceQuotaExceededException"}, OutcomeRetryable},
		{"internal server", &smithy.GenericAPIError{Code: "InternalServerException"}, OutcomeRetryable},
		{"unavailable", &smithy.GenericAPIError{Code: "ServiceUnavailableException"}, OutcomeRetryable},
		{"wrapped throttling", fmt.Errorf("invoke: %w", &smithy.GenericAPIError{Code: "ThrottlingException"}), OutcomeRetryable},
		{"runtime 503", &RuntimeError{StatusCode: http.StatusServiceUnavailable}, OutcomeRetryable},
		{"runtime 429 throttling", &RuntimeError{StatusCode: http.StatusTooManyRequests, Code: "ThrottlingException"}, OutcomeRetryable},
		{"bare 502", statusOnlyErr{http.StatusBadGateway}, OutcomeRetryable},
		{"deadline", context.DeadlineExceeded, OutcomeRetryable},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), OutcomeRetryable},
		{"net timeout", timeoutErr{}, OutcomeRetryable},
		{"validation", &smithy.GenericAPIError{Code: "ValidationException"}, OutcomeFatal},
		{"runtime 400", &RuntimeError{StatusCode: http.StatusBadRequest, Code: "ValidationException"}, OutcomeFatal},
		{"not found", &RuntimeError{StatusCode: http.StatusNotFound, Code: "ResourceNotFoundException"}, OutcomeFatal},
		{"malformed payload", ErrMalformedPayload, OutcomeFatal},
		{"unknown", errors.New("something odd"), OutcomeFatal},
		{"cancelled", context.Canceled, OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSessionID(t *testing.T) {
	short := SessionID("job-1", "")
	assert.Len(t, short, 33)
	assert.Equal(t, "job-1"+strings.Repeat("0", 28), short)
	assert.Equal(t, short, SessionID("job-1", ""), "deterministic")

	jobID := "8c6f2a8e-8b59-4a4e-a1b2-0f5f6b1d2c3e"
	withItem := SessionID(jobID, "item-7")
	assert.Equal(t, jobID+"-item-7", withItem)
	assert.NotEqual(t, SessionID(jobID, ""), withItem)

	long := SessionID(jobID, string(make([]byte, 200)))
	assert.Len(t, long, 100)
}

func TestParseRuntimeError(t *testing.T) {
	e := parseRuntimeError(400, http.Header{}, []byte(`{"__type":"com.amazon.coral#ValidationException","message":"bad input"}`))
	assert.Equal(t, "ValidationException", e.ErrorCode())
	assert.Equal(t, "bad input", e.ErrorMessage())
	assert.Equal(t, smithy.FaultClient, e.ErrorFault())

	h := http.Header{}
	h.Set("X-Amzn-ErrorType", "ThrottlingException:http://internal.amazon.com/")
	e = parseRuntimeError(429, h, []byte("slow down"))
	assert.Equal(t, "ThrottlingException", e.ErrorCode())
	assert.Equal(t, "slow down", e.ErrorMessage())

	e = parseRuntimeError(502, http.Header{}, nil)
	assert.Equal(t, "", e.ErrorCode())
	assert.Equal(t, smithy.FaultServer, e.ErrorFault())
}
