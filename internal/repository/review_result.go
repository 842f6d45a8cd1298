package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

type ReviewResultRepository interface {
	// EnsurePendingResults returns one result per item in item order,
	// creating missing rows as pending.
	EnsurePendingResults(ctx context.Context, jobID uuid.UUID, items []entity.CheckItem) ([]entity.ReviewResult, error)
	// ApplyResultOutcome records an evaluation outcome. A result that is
	// already completed is not changed.
	ApplyResultOutcome(ctx context.Context, id uuid.UUID, o entity.ResultOutcome) error
	ListReviewResults(ctx context.Context, jobID uuid.UUID) ([]entity.ReviewResult, error)
	// OverrideResult flags a completed verdict as overridden by the user.
	OverrideResult(ctx context.Context, id uuid.UUID, comment *string) (*entity.ReviewResult, error)
}

var reviewResultColumns = []string{
	"id", "review_job_id", "check_item_id", "check_item_name", "status",
	"verdict", "confidence", "explanation", "short_explanation", "extracted_text",
	"user_override", "user_comment", "input_tokens", "output_tokens", "total_cost",
	"error_detail", "created_at", "updated_at",
}

type reviewResultRepository struct {
	base
	logger *slog.Logger
}

func NewReviewResultRepository(drv *entsql.Driver, logger *slog.Logger) ReviewResultRepository {
	return &reviewResultRepository{base: newBase(drv), logger: logger}
}

func (r *reviewResultRepository) EnsurePendingResults(ctx context.Context, jobID uuid.UUID, items []entity.CheckItem) ([]entity.ReviewResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ts := now()
	ins := r.builder().Insert("review_results").
		Columns("id", "review_job_id", "check_item_id", "check_item_name", "position", "status", "created_at", "updated_at")
	for i, it := range items {
		ins.Values(uuid.New(), jobID, it.ID, it.Name, i, string(constants.ResultStatusPending), ts, ts)
	}
	query, args := ins.
		OnConflict(entsql.ConflictColumns("review_job_id", "check_item_id"), entsql.DoNothing()).
		Query()
	if _, err := r.exec(ctx, r.db, query, args); err != nil {
		r.logger.Error("failed to create pending results", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("create pending results: %w", err)
	}

	all, err := r.ListReviewResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string]entity.ReviewResult, len(all))
	for _, res := range all {
		byItem[res.CheckItemID] = res
	}
	out := make([]entity.ReviewResult, 0, len(items))
	for _, it := range items {
		if res, ok := byItem[it.ID]; ok {
			out = append(out, res)
		}
	}
	return out, nil
}

func (r *reviewResultRepository) ApplyResultOutcome(ctx context.Context, id uuid.UUID, o entity.ResultOutcome) error {
	var verdict any
	if o.Verdict != nil {
		verdict = string(*o.Verdict)
	}
	query, args := r.builder().Update("review_results").
		Set("status", string(o.Status)).
		Set("verdict", verdict).
		Set("confidence", nullableFloat(o.Confidence)).
		Set("explanation", o.Explanation).
		Set("short_explanation", o.ShortExplanation).
		Set("extracted_text", o.ExtractedText).
		Set("input_tokens", o.Usage.InputTokens).
		Set("output_tokens", o.Usage.OutputTokens).
		Set("total_cost", o.Usage.TotalCost).
		Set("error_detail", nullableString(o.ErrorDetail)).
		Set("updated_at", now()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.NEQ("status", string(constants.ResultStatusCompleted)),
		)).
		Query()
	n, err := r.exec(ctx, r.db, query, args)
	if err != nil {
		r.logger.Error("failed to apply result outcome", "result_id", id, "error", err)
		return fmt.Errorf("apply result outcome: %w", err)
	}
	if n > 0 {
		return nil
	}
	ok, err := r.exists(ctx, "review_results", id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("review result %s: %w", id, common.ErrNotFound)
	}
	r.logger.Debug("review result already completed", "result_id", id)
	return nil
}

func (r *reviewResultRepository) selectResults(ctx context.Context, pred *entsql.Predicate) ([]entity.ReviewResult, error) {
	b := r.builder()
	query, args := b.Select(reviewResultColumns...).
		From(b.Table("review_results")).
		Where(pred).
		OrderBy("position").
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.ReviewResult
	for rows.Next() {
		res, err := scanReviewResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReviewResult(rows *sql.Rows) (entity.ReviewResult, error) {
	var (
		res        entity.ReviewResult
		status     string
		verdict    sql.NullString
		confidence sql.NullFloat64
		comment    sql.NullString
		errDetail  sql.NullString
	)
	if err := rows.Scan(
		&res.ID, &res.ReviewJobID, &res.CheckItemID, &res.CheckItemName, &status,
		&verdict, &confidence, &res.Explanation, &res.ShortExplanation, &res.ExtractedText,
		&res.UserOverride, &comment, &res.Usage.InputTokens, &res.Usage.OutputTokens, &res.Usage.TotalCost,
		&errDetail, &res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		return res, fmt.Errorf("scan review result: %w", err)
	}
	res.Status = constants.ResultStatus(status)
	if verdict.Valid {
		v := constants.Verdict(verdict.String)
		res.Verdict = &v
	}
	if confidence.Valid {
		c := confidence.Float64
		res.Confidence = &c
	}
	res.UserComment = strPtr(comment)
	res.ErrorDetail = strPtr(errDetail)
	return res, nil
}

func (r *reviewResultRepository) ListReviewResults(ctx context.Context, jobID uuid.UUID) ([]entity.ReviewResult, error) {
	return r.selectResults(ctx, entsql.EQ("review_job_id", jobID))
}

func (r *reviewResultRepository) OverrideResult(ctx context.Context, id uuid.UUID, comment *string) (*entity.ReviewResult, error) {
	query, args := r.builder().Update("review_results").
		Set("user_override", true).
		Set("user_comment", nullableString(comment)).
		Set("updated_at", now()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.ResultStatusCompleted)),
			entsql.NotNull("verdict"),
		)).
		Query()
	n, err := r.exec(ctx, r.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("override result: %w", err)
	}
	if n == 0 {
		ok, err := r.exists(ctx, "review_results", id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("review result %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("review result %s has no verdict to override: %w", id, common.ErrPrecondition)
	}

	res, err := r.selectResults(ctx, entsql.EQ("id", id))
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("review result %s: %w", id, common.ErrNotFound)
	}
	return &res[0], nil
}
