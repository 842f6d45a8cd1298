package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/workflow"
)

const instrumentationName = "github.com/joseph-ayodele/review-orchestrator/internal/async"

// settleTimeout bounds transport calls made after the run context ended.
const settleTimeout = 5 * time.Second

// Executor runs one review job to completion.
type Executor interface {
	Execute(ctx context.Context, req entity.ReviewRequest) (workflow.Summary, error)
}

// JobFailer marks jobs failed for messages that never reach the executor.
type JobFailer interface {
	FailJob(ctx context.Context, id uuid.UUID, detail string) error
}

type ControllerConfig struct {
	// Concurrency is the number of jobs executing at once.
	Concurrency     int
	Visibility      time.Duration
	RetryVisibility time.Duration
	MaxReceives     int
	// MaxWait is how long a message may sit in the queue before its job is
	// failed without running. Zero disables the check.
	MaxWait time.Duration
}

// Controller admits queued review jobs to the executor, at most Concurrency
// at a time, in the order they were submitted.
type Controller struct {
	transport Transport
	exec      Executor
	jobs      JobFailer
	cfg       ControllerConfig
	logger    *slog.Logger
	now       func() time.Time

	slots *semaphore.Weighted
	wg    sync.WaitGroup

	messages metric.Int64Counter
	running  metric.Int64UpDownCounter
	waited   metric.Float64Histogram
}

func NewController(transport Transport, exec Executor, jobs JobFailer, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = 20 * time.Minute
	}
	if cfg.RetryVisibility <= 0 {
		cfg.RetryVisibility = 15 * time.Second
	}
	if cfg.MaxReceives < 1 {
		cfg.MaxReceives = 3
	}

	meter := otel.Meter(instrumentationName)
	messages, err := meter.Int64Counter("review.queue.messages",
		metric.WithDescription("Queue messages by disposition"))
	if err != nil {
		logger.Warn("queue.metrics.init_failed", "error", err)
	}
	running, err := meter.Int64UpDownCounter("review.queue.running",
		metric.WithDescription("Jobs holding an execution slot"))
	if err != nil {
		logger.Warn("queue.metrics.init_failed", "error", err)
	}
	waited, err := meter.Float64Histogram("review.queue.wait",
		metric.WithDescription("Time from submission to dispatch"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("queue.metrics.init_failed", "error", err)
	}

	return &Controller{
		transport: transport,
		exec:      exec,
		jobs:      jobs,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		slots:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		messages:  messages,
		running:   running,
		waited:    waited,
	}
}

// Submit enqueues req. It returns ErrDuplicate when an identical request was
// submitted within the dedup window. It never waits on execution.
func (c *Controller) Submit(ctx context.Context, req entity.ReviewRequest) (QueueMessage, error) {
	if req.JobID == uuid.Nil {
		return QueueMessage{}, fmt.Errorf("%w: jobId is required", common.ErrInvalidInput)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return QueueMessage{}, fmt.Errorf("encode review request: %w", err)
	}
	msg := QueueMessage{
		JobID:       req.JobID,
		Body:        body,
		DedupKey:    DedupKey(body),
		SubmittedAt: c.now(),
	}
	if err := c.transport.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrDuplicate) {
			c.logger.Info("queue.message.duplicate", "job_id", req.JobID, "dedup_key", msg.DedupKey)
		}
		return msg, err
	}
	c.logger.Info("queue.message.sent", "job_id", req.JobID)
	return msg, nil
}

// DeadLetters lists messages that exceeded the receive cap.
func (c *Controller) DeadLetters(ctx context.Context) ([]QueueMessage, error) {
	return c.transport.DeadLetters(ctx)
}

// Run consumes until ctx ends, then waits for running jobs to return. Jobs
// interrupted by shutdown are left unacked and will be redelivered.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("queue.consumer.start", "concurrency", c.cfg.Concurrency)
	defer func() {
		c.wg.Wait()
		c.logger.Info("queue.consumer.stopped")
	}()

	for {
		if err := c.slots.Acquire(ctx, 1); err != nil {
			return nil
		}
		d, err := c.transport.Receive(ctx, c.cfg.Visibility)
		if err != nil {
			c.slots.Release(1)
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			c.logger.Error("queue.receive.failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.wg.Add(1)
		c.track(ctx, 1)
		go func() {
			defer c.wg.Done()
			defer c.slots.Release(1)
			defer c.track(ctx, -1)
			c.handle(ctx, d)
		}()
	}
}

func (c *Controller) track(ctx context.Context, delta int64) {
	if c.running != nil {
		c.running.Add(context.WithoutCancel(ctx), delta)
	}
}

func (c *Controller) count(ctx context.Context, disposition string) {
	if c.messages != nil {
		c.messages.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("disposition", disposition)))
	}
}

func (c *Controller) handle(ctx context.Context, d Delivery) {
	start := c.now()
	log := c.logger.With("job_id", d.Message.JobID, "receive_count", d.ReceiveCount)

	var req entity.ReviewRequest
	if err := json.Unmarshal(d.Message.Body, &req); err != nil {
		log.Error("queue.message.invalid", "error", err)
		c.ack(ctx, d, "invalid")
		return
	}
	if req.JobID == uuid.Nil {
		log.Error("queue.message.invalid", "error", "missing jobId")
		c.ack(ctx, d, "invalid")
		return
	}

	if d.ReceiveCount > c.cfg.MaxReceives {
		c.failJob(ctx, req.JobID, fmt.Sprintf("%s: received %d times", constants.ErrCodeDeadLetter, d.ReceiveCount))
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		if err := c.transport.DeadLetter(sctx, d.Receipt); err != nil {
			log.Error("queue.message.dead_letter_failed", "error", err)
			return
		}
		c.count(ctx, "dead_lettered")
		log.Warn("queue.message.dead_lettered")
		return
	}

	wait := start.Sub(d.Message.SubmittedAt)
	if c.waited != nil {
		c.waited.Record(context.WithoutCancel(ctx), wait.Seconds())
	}
	if c.cfg.MaxWait > 0 && wait >= c.cfg.MaxWait {
		c.failJob(ctx, req.JobID, fmt.Sprintf("%s: waited %s in queue", constants.ErrCodeQueueTimeout, wait.Round(time.Second)))
		c.ack(ctx, d, "expired")
		return
	}

	sum, err := c.exec.Execute(ctx, req)
	elapsed := c.now().Sub(start).Milliseconds()
	if workflow.Settled(err) {
		if err != nil {
			log.Warn("queue.job.settled", "error", err, "elapsed_ms", elapsed)
		} else {
			log.Info("queue.job.settled", "status", sum.Status, "elapsed_ms", elapsed)
		}
		c.ack(ctx, d, "acked")
		return
	}

	log.Error("queue.job.abandoned", "error", err, "elapsed_ms", elapsed)
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := c.transport.ChangeVisibility(sctx, d.Receipt, c.cfg.RetryVisibility); err != nil {
		log.Warn("queue.message.visibility_failed", "error", err)
	}
	c.count(ctx, "retried")
}

func (c *Controller) ack(ctx context.Context, d Delivery, disposition string) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := c.transport.Ack(sctx, d.Receipt); err != nil {
		c.logger.Error("queue.message.ack_failed", "job_id", d.Message.JobID, "error", err)
		return
	}
	c.count(ctx, disposition)
	c.logger.Info("queue.message.acked", "job_id", d.Message.JobID, "disposition", disposition)
}

func (c *Controller) failJob(ctx context.Context, id uuid.UUID, detail string) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := c.jobs.FailJob(sctx, id, detail); err != nil {
		c.logger.Error("queue.job.fail_failed", "job_id", id, "error", err)
		return
	}
	c.logger.Warn("queue.job.failed", "job_id", id, "detail", detail)
}
