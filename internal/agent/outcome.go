package agent

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/aws/smithy-go"
)

// Outcome is how a caller should treat an invocation result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Target selects which agent a call is routed to.
type Target string

const (
	TargetItemEvaluation Target = "item-evaluation"
	TargetNextAction     Target = "next-action"
)

// Request is one gateway call. ItemID is empty for job-level calls.
type Request struct {
	JobID   string
	ItemID  string
	Target  Target
	Payload any
}

// Invocation is the record of a single gateway call. It is not persisted.
type Invocation struct {
	SessionID  string
	Request    Request
	StatusCode int
	Body       []byte
	Outcome    Outcome
	Err        error
	Elapsed    time.Duration
}

var retryableCodes = map[string]struct{}{
	"ThrottlingException":           {},
	"ServiceQuotaExceededException": {},
	"InternalServerException":       {},
	"ServiceUnavailableException":   {},
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Classify maps an invocation error onto an Outcome. Throttling, quota,
// transient internal and unavailable codes, 5xx statuses and timeouts are
// retryable. Everything else is fatal.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeRetryable
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := retryableCodes[apiErr.ErrorCode()]; ok {
			return OutcomeRetryable
		}
	}
	var sc httpStatusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() >= 500 && sc.HTTPStatusCode() <= 599 {
		return OutcomeRetryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return OutcomeRetryable
	}
	return OutcomeFatal
}
