package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
)

// RuntimeRequest is what the gateway hands to a transport.
type RuntimeRequest struct {
	Target    Target
	SessionID string
	Payload   json.RawMessage
}

// RuntimeResponse carries the raw status and the unread, streamed body. The
// gateway owns closing Body.
type RuntimeResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Runtime is the agent transport.
type Runtime interface {
	Invoke(ctx context.Context, req RuntimeRequest) (*RuntimeResponse, error)
}

// RuntimeError is a non-2xx runtime response. It satisfies smithy.APIError
// so codes classify the same way as SDK errors.
type RuntimeError struct {
	StatusCode int
	Code       string
	Message    string
}

var _ smithy.APIError = (*RuntimeError)(nil)

func (e *RuntimeError) Error() string {
	code := e.Code
	if code == "" {
		code = "UnknownError"
	}
	return fmt.Sprintf("agent runtime status %d: %s: %s", e.StatusCode, code, e.Message)
}

func (e *RuntimeError) ErrorCode() string    { return e.Code }
func (e *RuntimeError) ErrorMessage() string { return e.Message }
func (e *RuntimeError) HTTPStatusCode() int  { return e.StatusCode }

func (e *RuntimeError) ErrorFault() smithy.ErrorFault {
	if e.StatusCode >= 500 {
		return smithy.FaultServer
	}
	return smithy.FaultClient
}

// parseRuntimeError reads the error code from the X-Amzn-ErrorType header or
// from a JSON body with "__type", "code" or "error" fields.
func parseRuntimeError(status int, header http.Header, body []byte) *RuntimeError {
	e := &RuntimeError{StatusCode: status}
	if t := header.Get("X-Amzn-ErrorType"); t != "" {
		e.Code = t
	}
	var doc struct {
		Type    string `json:"__type"`
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &doc); err == nil {
		for _, c := range []string{doc.Type, doc.Code, doc.Error} {
			if e.Code == "" && c != "" {
				e.Code = c
			}
		}
		e.Message = doc.Message
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	// "aws.protocol#ThrottlingException:http://..." -> "ThrottlingException"
	if i := strings.LastIndex(e.Code, "#"); i >= 0 {
		e.Code = e.Code[i+1:]
	}
	if i := strings.Index(e.Code, ":"); i >= 0 {
		e.Code = e.Code[:i]
	}
	return e
}

// HTTPRuntime posts invocations to an agent runtime endpoint at
// <baseURL>/<target>/invocations.
type HTTPRuntime struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewHTTPRuntime builds a runtime transport. The client should not carry its
// own timeout; the gateway bounds every call.
func NewHTTPRuntime(baseURL string, client *http.Client, headers map[string]string) *HTTPRuntime {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPRuntime{baseURL: strings.TrimRight(baseURL, "/"), client: client, headers: headers}
}

func (r *HTTPRuntime) Invoke(ctx context.Context, req RuntimeRequest) (*RuntimeResponse, error) {
	body, err := json.Marshal(map[string]any{
		"sessionId": req.SessionID,
		"payload":   req.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode invocation: %w", err)
	}
	url := r.baseURL + "/" + string(req.Target) + "/invocations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Session-Id", req.SessionID)
	for k, v := range r.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	return &RuntimeResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}
