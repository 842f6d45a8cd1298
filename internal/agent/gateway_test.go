package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayInvokeSuccess(t *testing.T) {
	var gotSession string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item-evaluation/invocations", r.URL.Path)
		gotSession = r.Header.Get("X-Session-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		// stream the body in pieces
		fl := w.(http.Flusher)
		_, _ = io.WriteString(w, `{"result":"pass",`)
		fl.Flush()
		_, _ = io.WriteString(w, `"confidence":0.9}`)
	}))
	defer srv.Close()

	gw := NewGateway(NewHTTPRuntime(srv.URL, srv.Client(), nil), WithTimeout(5*time.Second))
	inv := gw.Invoke(context.Background(), Request{
		JobID:   "job-1",
		ItemID:  "item-1",
		Target:  TargetItemEvaluation,
		Payload: map[string]any{"checkName": "Signature"},
	})

	require.NoError(t, inv.Err)
	assert.Equal(t, OutcomeSuccess, inv.Outcome)
	assert.Equal(t, http.StatusOK, inv.StatusCode)
	assert.JSONEq(t, `{"result":"pass","confidence":0.9}`, string(inv.Body))
	assert.Equal(t, SessionID("job-1", "item-1"), gotSession)
	assert.GreaterOrEqual(t, len(gotSession), 33)
	assert.Equal(t, gotSession, gotBody["sessionId"])
	assert.Equal(t, map[string]any{"checkName": "Signature"}, gotBody["payload"])
}

func TestGatewayNon2xxIsAnError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Outcome
	}{
		{"throttled", http.StatusTooManyRequests, `{"__type":"ThrottlingException","message":"rate"}`, OutcomeRetryable},
		{"unavailable", http.StatusServiceUnavailable, `oops`, OutcomeRetryable},
		{"validation", http.StatusBadRequest, `{"__type":"ValidationException"}`, OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			inv := NewGateway(NewHTTPRuntime(srv.URL, srv.Client(), nil)).Invoke(context.Background(), Request{JobID: "j", Target: TargetNextAction})
			require.Error(t, inv.Err)
			assert.Equal(t, tt.want, inv.Outcome)
			assert.Equal(t, tt.status, inv.StatusCode)

			var re *RuntimeError
			require.True(t, errors.As(inv.Err, &re))
			assert.Equal(t, tt.status, re.HTTPStatusCode())
		})
	}
}

func TestGatewayTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	gw := NewGateway(NewHTTPRuntime(srv.URL, srv.Client(), nil), WithTimeout(50*time.Millisecond))
	inv := gw.Invoke(context.Background(), Request{JobID: "j", ItemID: "i", Target: TargetItemEvaluation})

	require.Error(t, inv.Err)
	assert.Equal(t, OutcomeRetryable, inv.Outcome)
	assert.Less(t, inv.Elapsed, 5*time.Second)
}

// stallingRuntime returns headers at once and never finishes the body.
type stallingRuntime struct{}

type blockingBody struct{ closed chan struct{} }

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingBody) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func (stallingRuntime) Invoke(ctx context.Context, req RuntimeRequest) (*RuntimeResponse, error) {
	return &RuntimeResponse{StatusCode: 200, Header: http.Header{}, Body: &blockingBody{closed: make(chan struct{})}}, nil
}

func TestGatewayStalledStreamTimesOut(t *testing.T) {
	gw := NewGateway(stallingRuntime{}, WithTimeout(30*time.Millisecond))
	inv := gw.Invoke(context.Background(), Request{JobID: "j", Target: TargetItemEvaluation})

	require.Error(t, inv.Err)
	assert.Equal(t, OutcomeRetryable, inv.Outcome)
}

type countingRuntime struct{ calls atomic.Int32 }

func (c *countingRuntime) Invoke(ctx context.Context, req RuntimeRequest) (*RuntimeResponse, error) {
	c.calls.Add(1)
	return &RuntimeResponse{StatusCode: 200, Body: io.NopCloser(strings.NewReader(`{}`))}, nil
}

func TestGatewayMalformedPayloadIsFatal(t *testing.T) {
	rt := &countingRuntime{}
	inv := NewGateway(rt).Invoke(context.Background(), Request{JobID: "j", Payload: json.RawMessage(`{not json`)})

	assert.Equal(t, OutcomeFatal, inv.Outcome)
	assert.ErrorIs(t, inv.Err, ErrMalformedPayload)
	assert.Zero(t, rt.calls.Load())

	inv = NewGateway(rt).Invoke(context.Background(), Request{JobID: "j", Payload: map[string]any{"f": func() {}}})
	assert.ErrorIs(t, inv.Err, ErrMalformedPayload)
}

func TestGatewayRateLimit(t *testing.T) {
	rt := &countingRuntime{}
	gw := NewGateway(rt, WithRateLimit(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		inv := gw.Invoke(context.Background(), Request{JobID: "j", Target: TargetItemEvaluation})
		require.NoError(t, inv.Err)
	}
	// burst 1 at 20/s: the 2nd and 3rd calls wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.EqualValues(t, 3, rt.calls.Load())
}
