package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/agent"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/tools"
)

const instrumentationName = "github.com/joseph-ayodele/review-orchestrator/internal/workflow"

// ErrJobFailed is returned when a common step moved the job to failed. The
// job is terminal and the message that started it is done.
var ErrJobFailed = errors.New("review job failed")

// Settled reports whether err leaves nothing for a redelivery to do.
func Settled(err error) bool {
	return err == nil || errors.Is(err, ErrJobFailed) || errors.Is(err, common.ErrNotFound)
}

// Config tunes per-job fan-out and the per-item retry policy.
type Config struct {
	FanOutLimit          int
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// DefaultMCPServers are merged under the servers a request names.
	DefaultMCPServers []tools.MCPServer
}

func (c Config) withDefaults() Config {
	if c.FanOutLimit < 1 {
		c.FanOutLimit = 1
	}
	if c.RetryMaxAttempts < 1 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 2 * time.Second
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		c.RetryMaxInterval = 15 * c.RetryInitialInterval
	}
	return c
}

// Summary describes what one Execute call did.
type Summary struct {
	JobID           uuid.UUID
	Status          constants.JobStatus
	AlreadyTerminal bool
	Evaluated       int
	Reused          int
	Counts          Counts
	NextAction      constants.NextActionStatus
}

// ItemPayload is the item-evaluation request sent to the agent.
type ItemPayload struct {
	ReviewJobID       string               `json:"reviewJobId"`
	CheckItemID       string               `json:"checkItemId"`
	ReviewResultID    string               `json:"reviewResultId"`
	DocumentPaths     []string             `json:"documentPaths"`
	CheckName         string               `json:"checkName"`
	CheckDescription  string               `json:"checkDescription"`
	LanguageName      string               `json:"languageName,omitempty"`
	MCPServers        []tools.MCPServer    `json:"mcpServers,omitempty"`
	ToolConfiguration *tools.Configuration `json:"toolConfiguration,omitempty"`
	UserID            string               `json:"userId,omitempty"`
}

// NextActionPayload is the next-action request sent to the agent.
type NextActionPayload struct {
	ReviewJobID       string                `json:"reviewJobId"`
	PromptTemplate    entity.PromptTemplate `json:"promptTemplate"`
	TemplateData      TemplateData          `json:"templateData"`
	ToolConfiguration *tools.Configuration  `json:"toolConfiguration,omitempty"`
}

// Executor runs the review state machine for one job at a time.
type Executor struct {
	store   Store
	docs    DocumentChecker
	gateway Invoker
	cfg     Config
	logger  *slog.Logger

	tracer       trace.Tracer
	itemCounter  metric.Int64Counter
	itemDuration metric.Float64Histogram
}

func NewExecutor(store Store, docs DocumentChecker, gateway Invoker, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(instrumentationName)
	itemCounter, err := meter.Int64Counter("review.items.evaluated",
		metric.WithDescription("Check items evaluated, by outcome"))
	if err != nil {
		logger.Warn("workflow.metrics.init_failed", "error", err)
	}
	itemDuration, err := meter.Float64Histogram("review.item.duration",
		metric.WithDescription("Wall time to evaluate one check item including retries"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("workflow.metrics.init_failed", "error", err)
	}
	return &Executor{
		store:        store,
		docs:         docs,
		gateway:      gateway,
		cfg:          cfg.withDefaults(),
		logger:       logger,
		tracer:       otel.Tracer(instrumentationName),
		itemCounter:  itemCounter,
		itemDuration: itemDuration,
	}
}

// Execute drives one job to a terminal state. A nil error or ErrJobFailed
// means the job is terminal. Any other error (context cancellation, store
// failure) leaves it for a redelivery.
func (e *Executor) Execute(ctx context.Context, req entity.ReviewRequest) (Summary, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(attribute.String("job_id", req.JobID.String())))
	defer span.End()

	sum, err := e.execute(ctx, req)
	if err != nil && !errors.Is(err, ErrJobFailed) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return sum, err
}

func (e *Executor) execute(ctx context.Context, req entity.ReviewRequest) (Summary, error) {
	start := time.Now()
	sum := Summary{JobID: req.JobID}
	log := e.logger.With("job_id", req.JobID)

	job, err := e.store.GetReviewJob(ctx, req.JobID)
	if err != nil {
		return sum, fmt.Errorf("load job %s: %w", req.JobID, err)
	}
	if job.Status.IsTerminal() {
		log.Info("workflow.job.already_terminal", "status", job.Status)
		sum.Status = job.Status
		sum.AlreadyTerminal = true
		return sum, nil
	}
	if err := e.store.MarkJobProcessing(ctx, job.ID); err != nil {
		return sum, fmt.Errorf("mark processing: %w", err)
	}
	log.Info("workflow.job.start", "check_list_id", job.CheckListID)

	paths := req.DocumentPaths
	if len(paths) == 0 {
		for _, d := range job.Documents {
			paths = append(paths, d.Path)
		}
	}
	if err := e.fetchDocuments(ctx, paths); err != nil {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		return e.fail(ctx, &sum, job.ID, constants.ErrCodeDocumentFetch, err)
	}

	items, err := e.store.ListCheckItems(ctx, job.CheckListID)
	if err != nil {
		return sum, fmt.Errorf("list check items: %w", err)
	}
	evaluable := entity.EvaluableItems(items)
	if req.CheckItemID != nil {
		evaluable = filterItem(evaluable, *req.CheckItemID)
		if len(evaluable) == 0 {
			return e.fail(ctx, &sum, job.ID, constants.ErrCodeItemNotFound, fmt.Errorf("check item %s", *req.CheckItemID))
		}
	}
	if len(evaluable) == 0 {
		return e.fail(ctx, &sum, job.ID, constants.ErrCodeChecklistEmpty, errors.New("no evaluable check items"))
	}

	results, err := e.store.EnsurePendingResults(ctx, job.ID, evaluable)
	if err != nil {
		return sum, fmt.Errorf("create pending results: %w", err)
	}

	byID := make(map[string]entity.CheckItem, len(evaluable))
	for _, it := range evaluable {
		byID[it.ID] = it
	}
	mcp := tools.Merge(e.cfg.DefaultMCPServers, req.MCPServers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.FanOutLimit)
	for _, r := range results {
		if r.Status == constants.ResultStatusCompleted {
			sum.Reused++
			continue
		}
		item, ok := byID[r.CheckItemID]
		if !ok {
			continue
		}
		sum.Evaluated++
		payload := ItemPayload{
			ReviewJobID:       job.ID.String(),
			CheckItemID:       item.ID,
			ReviewResultID:    r.ID.String(),
			DocumentPaths:     paths,
			CheckName:         item.Name,
			CheckDescription:  item.Description,
			LanguageName:      req.LanguageName,
			MCPServers:        mcp,
			ToolConfiguration: req.ToolConfiguration,
			UserID:            req.UserID,
		}
		resultID := r.ID
		g.Go(func() error {
			return e.evaluateItem(gctx, resultID, payload)
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	all, err := e.store.ListReviewResults(ctx, job.ID)
	if err != nil {
		return sum, fmt.Errorf("list results: %w", err)
	}
	sum.Counts = Aggregate(all)

	completion := entity.JobCompletion{Usage: sum.Counts.Usage, NextActionStatus: constants.NextActionSkipped}
	if req.ShouldGenerate {
		text, usage, err := e.generateNextAction(ctx, job, req, items, all, sum.Counts)
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		completion.Usage.Add(usage)
		if err != nil {
			log.Warn("workflow.next_action.failed", "error", err)
			completion.NextActionStatus = constants.NextActionFailed
		} else {
			completion.NextActionStatus = constants.NextActionCompleted
			completion.NextAction = &text
		}
	}
	sum.NextAction = completion.NextActionStatus

	if err := e.store.CompleteJob(ctx, job.ID, completion); err != nil {
		return sum, fmt.Errorf("complete job: %w", err)
	}
	sum.Status = constants.JobStatusCompleted
	log.Info("workflow.job.completed",
		"evaluated", sum.Evaluated,
		"reused", sum.Reused,
		"pass", sum.Counts.Pass,
		"fail", sum.Counts.Fail,
		"warning", sum.Counts.Warning,
		"failed", sum.Counts.Failed,
		"input_tokens", completion.Usage.InputTokens,
		"output_tokens", completion.Usage.OutputTokens,
		"next_action", completion.NextActionStatus,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sum, nil
}

func (e *Executor) fail(ctx context.Context, sum *Summary, jobID uuid.UUID, code string, cause error) (Summary, error) {
	detail := code + ": " + cause.Error()
	if err := e.store.FailJob(ctx, jobID, detail); err != nil {
		return *sum, fmt.Errorf("mark failed: %w", err)
	}
	sum.Status = constants.JobStatusFailed
	e.logger.Error("workflow.job.failed", "job_id", jobID, "code", code, "error", cause)
	return *sum, fmt.Errorf("%w: %s", ErrJobFailed, detail)
}

func (e *Executor) fetchDocuments(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("no documents attached")
	}
	for _, p := range paths {
		if _, err := e.docs.Stat(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func filterItem(items []entity.CheckItem, id string) []entity.CheckItem {
	for _, it := range items {
		if it.ID == id {
			return []entity.CheckItem{it}
		}
	}
	return nil
}

// evaluateItem runs one item to a stored outcome. It returns an error only
// when the outcome could not be stored or the job context ended.
func (e *Executor) evaluateItem(ctx context.Context, resultID uuid.UUID, payload ItemPayload) error {
	ctx, span := e.tracer.Start(ctx, "workflow.evaluate_item", trace.WithAttributes(
		attribute.String("job_id", payload.ReviewJobID),
		attribute.String("item_id", payload.CheckItemID),
	))
	defer span.End()
	start := time.Now()

	inv, attempts := e.invokeWithRetry(ctx, agent.Request{
		JobID:   payload.ReviewJobID,
		ItemID:  payload.CheckItemID,
		Target:  agent.TargetItemEvaluation,
		Payload: payload,
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	var outcome entity.ResultOutcome
	label := inv.Outcome.String()
	if inv.Outcome == agent.OutcomeSuccess {
		v, err := agent.DecodeItemVerdict(inv.Body, e.logger)
		if err != nil {
			label = "malformed"
			outcome = failedOutcome(fmt.Sprintf("%s: %v", agent.OutcomeFatal, err))
		} else {
			verdict, confidence := v.Verdict, v.Confidence
			outcome = entity.ResultOutcome{
				Status:           constants.ResultStatusCompleted,
				Verdict:          &verdict,
				Confidence:       &confidence,
				Explanation:      v.Explanation,
				ShortExplanation: v.ShortExplanation,
				ExtractedText:    v.ExtractedText,
				Usage:            v.Usage,
			}
		}
	} else {
		outcome = failedOutcome(fmt.Sprintf("%s after %d attempt(s): %v", inv.Outcome, attempts, inv.Err))
		span.SetStatus(codes.Error, inv.Outcome.String())
	}

	if err := e.store.ApplyResultOutcome(ctx, resultID, outcome); err != nil {
		return fmt.Errorf("store outcome for item %s: %w", payload.CheckItemID, err)
	}

	attrs := metric.WithAttributes(attribute.String("outcome", label))
	if e.itemCounter != nil {
		e.itemCounter.Add(ctx, 1, attrs)
	}
	if e.itemDuration != nil {
		e.itemDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	e.logger.Info("workflow.item.done",
		"job_id", payload.ReviewJobID,
		"item_id", payload.CheckItemID,
		"status", outcome.Status,
		"outcome", label,
		"attempts", attempts,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func failedOutcome(detail string) entity.ResultOutcome {
	return entity.ResultOutcome{Status: constants.ResultStatusFailed, ErrorDetail: &detail}
}

// maxRetryElapsed leaves the attempt ceiling as the only retry bound.
const maxRetryElapsed = 24 * time.Hour

// invokeWithRetry retries retryable outcomes with exponential backoff up to
// RetryMaxAttempts calls. Fatal outcomes stop at once.
func (e *Executor) invokeWithRetry(ctx context.Context, req agent.Request) (agent.Invocation, int) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.RetryInitialInterval
	b.MaxInterval = e.cfg.RetryMaxInterval

	var last agent.Invocation
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		last = e.gateway.Invoke(ctx, req)
		switch last.Outcome {
		case agent.OutcomeSuccess:
			return struct{}{}, nil
		case agent.OutcomeRetryable:
			return struct{}{}, last.Err
		default:
			return struct{}{}, backoff.Permanent(last.Err)
		}
	}
	notify := func(err error, next time.Duration) {
		e.logger.Warn("workflow.agent.retry",
			"job_id", req.JobID,
			"item_id", req.ItemID,
			"target", req.Target,
			"attempt", attempts,
			"next_in_ms", next.Milliseconds(),
			"error", err,
		)
	}
	_, _ = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.cfg.RetryMaxAttempts)),
		backoff.WithMaxElapsedTime(maxRetryElapsed),
		backoff.WithNotify(notify),
	)
	return last, attempts
}

func (e *Executor) generateNextAction(ctx context.Context, job *entity.ReviewJob, req entity.ReviewRequest, items []entity.CheckItem, results []entity.ReviewResult, counts Counts) (string, entity.Usage, error) {
	if req.PromptTemplate == nil || strings.TrimSpace(req.PromptTemplate.Prompt) == "" {
		return "", entity.Usage{}, errors.New("missing prompt template")
	}

	checklistName := ""
	if cl, err := e.store.GetCheckList(ctx, job.CheckListID); err == nil {
		checklistName = cl.Name
	} else {
		e.logger.Warn("workflow.next_action.checklist_lookup_failed", "job_id", job.ID, "error", err)
	}

	docs := make([]DocumentView, 0, len(job.Documents))
	for _, d := range job.Documents {
		docs = append(docs, DocumentView{Filename: d.Filename})
	}
	if len(docs) == 0 {
		for _, p := range req.DocumentPaths {
			docs = append(docs, DocumentView{Filename: path.Base(p)})
		}
	}

	data := buildTemplateData(checklistName, items, results, docs, counts)
	payload := NextActionPayload{
		ReviewJobID: job.ID.String(),
		PromptTemplate: entity.PromptTemplate{
			ID:     req.PromptTemplate.ID,
			Prompt: ExpandTemplate(req.PromptTemplate.Prompt, data),
		},
		TemplateData:      data,
		ToolConfiguration: req.ToolConfiguration,
	}

	inv, attempts := e.invokeWithRetry(ctx, agent.Request{JobID: job.ID.String(), Target: agent.TargetNextAction, Payload: payload})
	if inv.Outcome != agent.OutcomeSuccess {
		return "", entity.Usage{}, fmt.Errorf("%s after %d attempt(s): %w", inv.Outcome, attempts, inv.Err)
	}
	res, err := agent.DecodeNextAction(inv.Body)
	if err != nil {
		return "", entity.Usage{}, err
	}
	return res.Text, res.Usage, nil
}
