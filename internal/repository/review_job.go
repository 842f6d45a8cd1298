package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

type ReviewJobRepository interface {
	CreateReviewJob(ctx context.Context, job *entity.ReviewJob) error
	GetReviewJob(ctx context.Context, id uuid.UUID) (*entity.ReviewJob, error)
	MarkJobProcessing(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, detail string) error
	CompleteJob(ctx context.Context, id uuid.UUID, c entity.JobCompletion) error
}

var reviewJobColumns = []string{
	"id", "check_list_id", "name", "status", "documents",
	"input_tokens", "output_tokens", "total_cost", "error_detail",
	"next_action_status", "next_action", "user_id",
	"created_at", "updated_at", "completed_at",
}

var openJobStatuses = []any{string(constants.JobStatusPending), string(constants.JobStatusProcessing)}

type reviewJobRepository struct {
	base
	logger *slog.Logger
}

func NewReviewJobRepository(drv *entsql.Driver, logger *slog.Logger) ReviewJobRepository {
	return &reviewJobRepository{base: newBase(drv), logger: logger}
}

func (r *reviewJobRepository) CreateReviewJob(ctx context.Context, job *entity.ReviewJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = constants.JobStatusPending
	}
	docs, err := json.Marshal(job.Documents)
	if err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	ts := now()
	job.CreatedAt, job.UpdatedAt = ts, ts

	var userID any
	if job.UserID != "" {
		userID = job.UserID
	}
	query, args := r.builder().Insert("review_jobs").
		Columns("id", "check_list_id", "name", "status", "documents", "user_id", "created_at", "updated_at").
		Values(job.ID, job.CheckListID, job.Name, string(job.Status), string(docs), userID, ts, ts).
		Query()
	if _, err := r.exec(ctx, r.db, query, args); err != nil {
		r.logger.Error("failed to create review job", "job_id", job.ID, "error", err)
		return fmt.Errorf("create review job: %w", err)
	}
	return nil
}

func (r *reviewJobRepository) GetReviewJob(ctx context.Context, id uuid.UUID) (*entity.ReviewJob, error) {
	b := r.builder()
	query, args := b.Select(reviewJobColumns...).From(b.Table("review_jobs")).Where(entsql.EQ("id", id)).Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get review job: %w", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("review job %s: %w", id, common.ErrNotFound)
	}
	return scanReviewJob(rows)
}

func scanReviewJob(rows *sql.Rows) (*entity.ReviewJob, error) {
	var (
		job        entity.ReviewJob
		status     string
		docs       []byte
		errDetail  sql.NullString
		nextStatus sql.NullString
		nextAction sql.NullString
		userID     sql.NullString
		completed  sql.NullTime
	)
	if err := rows.Scan(
		&job.ID, &job.CheckListID, &job.Name, &status, &docs,
		&job.InputTokens, &job.OutputTokens, &job.TotalCost, &errDetail,
		&nextStatus, &nextAction, &userID,
		&job.CreatedAt, &job.UpdatedAt, &completed,
	); err != nil {
		return nil, fmt.Errorf("scan review job: %w", err)
	}
	job.Status = constants.JobStatus(status)
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &job.Documents); err != nil {
			return nil, fmt.Errorf("decode documents: %w", err)
		}
	}
	job.ErrorDetail = strPtr(errDetail)
	if nextStatus.Valid {
		st := constants.NextActionStatus(nextStatus.String)
		job.NextActionStatus = &st
	}
	job.NextAction = strPtr(nextAction)
	job.UserID = userID.String
	job.CompletedAt = timePtr(completed)
	return &job, nil
}

// transition applies upd when the job is still open. A job that is already
// terminal is left alone and no error is returned.
func (r *reviewJobRepository) transition(ctx context.Context, id uuid.UUID, event string, set func(*entsql.UpdateBuilder)) error {
	u := r.builder().Update("review_jobs").Set("updated_at", now())
	set(u)
	query, args := u.Where(entsql.And(entsql.EQ("id", id), entsql.In("status", openJobStatuses...))).Query()
	n, err := r.exec(ctx, r.db, query, args)
	if err != nil {
		r.logger.Error("review job transition failed", "event", event, "job_id", id, "error", err)
		return fmt.Errorf("%s: %w", event, err)
	}
	if n > 0 {
		return nil
	}
	ok, err := r.exists(ctx, "review_jobs", id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("review job %s: %w", id, common.ErrNotFound)
	}
	r.logger.Debug("review job already terminal", "event", event, "job_id", id)
	return nil
}

func (r *reviewJobRepository) MarkJobProcessing(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, "mark processing", func(u *entsql.UpdateBuilder) {
		u.Set("status", string(constants.JobStatusProcessing))
	})
}

func (r *reviewJobRepository) FailJob(ctx context.Context, id uuid.UUID, detail string) error {
	ts := now()
	return r.transition(ctx, id, "fail job", func(u *entsql.UpdateBuilder) {
		u.Set("status", string(constants.JobStatusFailed)).
			Set("error_detail", detail).
			Set("completed_at", ts)
	})
}

func (r *reviewJobRepository) CompleteJob(ctx context.Context, id uuid.UUID, c entity.JobCompletion) error {
	ts := now()
	return r.transition(ctx, id, "complete job", func(u *entsql.UpdateBuilder) {
		u.Set("status", string(constants.JobStatusCompleted)).
			Set("input_tokens", c.Usage.InputTokens).
			Set("output_tokens", c.Usage.OutputTokens).
			Set("total_cost", c.Usage.TotalCost).
			Set("next_action_status", string(c.NextActionStatus)).
			Set("next_action", nullableString(c.NextAction)).
			Set("completed_at", ts)
	})
}
