package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrMalformedPayload marks a request payload that cannot be encoded.
	ErrMalformedPayload = errors.New("malformed agent payload")
	// ErrMalformedResponse marks a successful call whose body is unusable.
	ErrMalformedResponse = errors.New("malformed agent response")
)

// Gateway issues agent calls and classifies their results. It keeps no
// per-call state and may be shared.
type Gateway struct {
	runtime Runtime
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

type Option func(*Gateway)

// WithTimeout bounds each call, including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimit caps outgoing calls per second. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gateway) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGateway(rt Runtime, opts ...Option) *Gateway {
	g := &Gateway{
		runtime: rt,
		timeout: 15 * time.Minute,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke performs one call. Failures are reported on the Invocation, never
// as a separate error.
func (g *Gateway) Invoke(ctx context.Context, req Request) Invocation {
	start := time.Now()
	inv := Invocation{SessionID: SessionID(req.JobID, req.ItemID), Request: req}
	finish := func(err error) Invocation {
		inv.Err = err
		inv.Outcome = Classify(err)
		inv.Elapsed = time.Since(start)
		attrs := []any{
			"session_id", inv.SessionID,
			"job_id", req.JobID,
			"item_id", req.ItemID,
			"target", req.Target,
			"status", inv.StatusCode,
			"outcome", inv.Outcome.String(),
			"elapsed_ms", inv.Elapsed.Milliseconds(),
		}
		if err != nil {
			g.logger.Warn("agent.invoke.error", append(attrs, "error", err)...)
		} else {
			g.logger.Info("agent.invoke.ok", append(attrs, "bytes", len(inv.Body))...)
		}
		return inv
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return finish(err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return finish(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.logger.Debug("agent.invoke.start", "session_id", inv.SessionID, "job_id", req.JobID, "item_id", req.ItemID, "target", req.Target)

	resp, err := g.runtime.Invoke(callCtx, RuntimeRequest{Target: req.Target, SessionID: inv.SessionID, Payload: payload})
	if err != nil {
		return finish(g.timeoutAware(ctx, callCtx, err))
	}
	inv.StatusCode = resp.StatusCode

	body, err := readBody(callCtx, resp.Body)
	if err != nil {
		return finish(g.timeoutAware(ctx, callCtx, fmt.Errorf("read response: %w", err)))
	}
	inv.Body = body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return finish(parseRuntimeError(resp.StatusCode, resp.Header, body))
	}
	return finish(nil)
}

// timeoutAware marks errors caused by the per-call deadline so they classify
// as retryable, while a cancelled parent context stays as is.
func (g *Gateway) timeoutAware(parent, call context.Context, err error) error {
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("agent call exceeded %s: %w: %v", g.timeout, context.DeadlineExceeded, err)
	}
	return err
}

func encodePayload(p any) (json.RawMessage, error) {
	switch v := p.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, ErrMalformedPayload
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, ErrMalformedPayload
		}
		return v, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return b, nil
}

// readBody drains a streamed body, giving up when ctx ends.
func readBody(ctx context.Context, body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	type result struct {
		b   []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		b, err := io.ReadAll(body)
		done <- result{b, err}
	}()

	select {
	case r := <-done:
		_ = body.Close()
		return r.b, r.err
	case <-ctx.Done():
		_ = body.Close()
		return nil, ctx.Err()
	}
}
