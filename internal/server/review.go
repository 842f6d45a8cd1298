package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/async"
	"github.com/joseph-ayodele/review-orchestrator/internal/checklist"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/storage"
	"github.com/joseph-ayodele/review-orchestrator/internal/tools"
)

// Store is the persistence the API reads and writes.
type Store interface {
	CreateReviewJob(ctx context.Context, job *entity.ReviewJob) error
	GetReviewJob(ctx context.Context, id uuid.UUID) (*entity.ReviewJob, error)
	FailJob(ctx context.Context, id uuid.UUID, detail string) error

	CreateCheckList(ctx context.Context, cl *entity.CheckList) error
	GetCheckList(ctx context.Context, id uuid.UUID) (*entity.CheckList, error)

	ListReviewResults(ctx context.Context, jobID uuid.UUID) ([]entity.ReviewResult, error)
	OverrideResult(ctx context.Context, id uuid.UUID, comment *string) (*entity.ReviewResult, error)
}

// Queue admits review requests.
type Queue interface {
	Submit(ctx context.Context, req entity.ReviewRequest) (async.QueueMessage, error)
	DeadLetters(ctx context.Context) ([]async.QueueMessage, error)
}

// ChecklistExtractor turns document pages into stored check items.
type ChecklistExtractor interface {
	Extract(ctx context.Context, req checklist.ExtractRequest) (checklist.ExtractResult, error)
}

// Exporter renders a job's results as a workbook.
type Exporter interface {
	ExportReviewResultsXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error)
}

// DocumentReader reads source documents from the object store.
type DocumentReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type ReviewServer struct {
	store     Store
	queue     Queue
	extractor ChecklistExtractor
	exporter  Exporter
	documents DocumentReader
	logger    *slog.Logger
}

func NewReviewServer(store Store, queue Queue, extractor ChecklistExtractor, exporter Exporter, documents DocumentReader, logger *slog.Logger) *ReviewServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewServer{
		store:     store,
		queue:     queue,
		extractor: extractor,
		exporter:  exporter,
		documents: documents,
		logger:    logger,
	}
}

var _ ReviewServiceServer = (*ReviewServer)(nil)

type DocumentInput struct {
	Filename string `json:"filename,omitempty"`
	Path     string `json:"path"`
	FileType string `json:"fileType,omitempty"`
}

// SubmitReviewRequest either starts a new job (CheckListID and Documents) or
// re-enqueues an unfinished one (JobID).
type SubmitReviewRequest struct {
	JobID             *uuid.UUID             `json:"jobId,omitempty"`
	CheckListID       uuid.UUID              `json:"checkListId"`
	Name              string                 `json:"name,omitempty"`
	Documents         []DocumentInput        `json:"documents,omitempty"`
	CheckItemID       *string                `json:"checkItemId,omitempty"`
	CheckName         string                 `json:"checkName,omitempty"`
	CheckDescription  string                 `json:"checkDescription,omitempty"`
	LanguageName      string                 `json:"languageName,omitempty"`
	MCPServers        []tools.MCPServer      `json:"mcpServers,omitempty"`
	ToolConfiguration *tools.Configuration   `json:"toolConfiguration,omitempty"`
	ShouldGenerate    bool                   `json:"shouldGenerate,omitempty"`
	PromptTemplate    *entity.PromptTemplate `json:"promptTemplate,omitempty"`
	UserID            string                 `json:"userId,omitempty"`
}

type SubmitReviewResponse struct {
	Job       *entity.ReviewJob `json:"job"`
	Duplicate bool              `json:"duplicate"`
}

type GetReviewJobRequest struct {
	JobID uuid.UUID `json:"jobId"`
}

type GetReviewJobResponse struct {
	Job     *entity.ReviewJob     `json:"job"`
	Results []entity.ReviewResult `json:"results"`
}

type OverrideResultRequest struct {
	ResultID uuid.UUID `json:"resultId"`
	Comment  *string   `json:"comment,omitempty"`
}

type OverrideResultResponse struct {
	Result *entity.ReviewResult `json:"result"`
}

type ListDeadLettersResponse struct {
	Messages []async.QueueMessage `json:"messages"`
}

func (s *ReviewServer) SubmitReview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SubmitReviewRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		job *entity.ReviewJob
		err error
	)
	if req.JobID != nil {
		job, err = s.resumeJob(ctx, *req.JobID)
	} else {
		job, err = s.createJob(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(job.Documents))
	for _, d := range job.Documents {
		paths = append(paths, d.Path)
	}
	msg := entity.ReviewRequest{
		JobID:             job.ID,
		CheckItemID:       req.CheckItemID,
		DocumentPaths:     paths,
		CheckName:         req.CheckName,
		CheckDescription:  req.CheckDescription,
		LanguageName:      req.LanguageName,
		MCPServers:        req.MCPServers,
		ToolConfiguration: req.ToolConfiguration,
		ShouldGenerate:    req.ShouldGenerate,
		PromptTemplate:    req.PromptTemplate,
		UserID:            req.UserID,
	}

	resp := SubmitReviewResponse{Job: job}
	if _, err := s.queue.Submit(ctx, msg); err != nil {
		if !errors.Is(err, async.ErrDuplicate) {
			s.logger.Error("review.submit.failed", "req_id", common.RequestIDFromContext(ctx), "job_id", job.ID, "error", err)
			if req.JobID == nil {
				s.failJob(ctx, job.ID, constants.ErrCodeQueueSubmit+": "+err.Error())
			}
			return nil, common.WrapError(err, "submit review")
		}
		resp.Duplicate = true
	}
	s.logger.Info("review.submit.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"job_id", job.ID,
		"documents", len(paths),
		"duplicate", resp.Duplicate,
	)
	return encode(resp)
}

// failJob marks a job that never reached the queue as failed. A failed write
// is logged, since the job would otherwise stay pending with no record.
func (s *ReviewServer) failJob(ctx context.Context, id uuid.UUID, detail string) {
	if err := s.store.FailJob(context.WithoutCancel(ctx), id, detail); err != nil {
		s.logger.Error("review.job.fail_error", "req_id", common.RequestIDFromContext(ctx), "job_id", id, "detail", detail, "error", err)
	}
}

const (
	maxNameLength    = 200
	maxCommentLength = 4000
)

func (r SubmitReviewRequest) validate() error {
	v := common.NewValidator().
		Field("userId", r.UserID, common.MaxLength(maxNameLength)).
		Field("languageName", r.LanguageName, common.MaxLength(maxNameLength))
	if r.ShouldGenerate {
		var prompt string
		if r.PromptTemplate != nil {
			prompt = r.PromptTemplate.Prompt
		}
		v.Field("promptTemplate.prompt", prompt, common.Required)
	}
	if r.JobID == nil {
		v.Field("checkListId", r.CheckListID, common.UUID).
			Field("documents", r.Documents, common.NotEmpty).
			Field("name", r.Name, common.MaxLength(maxNameLength))
	}
	return v.Err()
}

func (s *ReviewServer) resumeJob(ctx context.Context, id uuid.UUID) (*entity.ReviewJob, error) {
	job, err := s.store.GetReviewJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("review job %s is %s: %w", id, job.Status, common.ErrPrecondition)
	}
	return job, nil
}

func (s *ReviewServer) createJob(ctx context.Context, req SubmitReviewRequest) (*entity.ReviewJob, error) {
	cl, err := s.store.GetCheckList(ctx, req.CheckListID)
	if err != nil {
		return nil, err
	}

	docs := make([]entity.Document, 0, len(req.Documents))
	for i, d := range req.Documents {
		doc, err := toDocument(d)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = cl.Name
	}
	job := &entity.ReviewJob{
		CheckListID: cl.ID,
		Name:        name,
		Status:      constants.JobStatusPending,
		Documents:   docs,
		UserID:      req.UserID,
	}
	if err := s.store.CreateReviewJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func toDocument(in DocumentInput) (entity.Document, error) {
	key := strings.TrimSpace(in.Path)
	fileType := strings.ToUpper(strings.TrimSpace(in.FileType))
	if fileType == "" {
		fileType = constants.MapExtToFormat(path.Ext(key))
	}
	err := common.NewValidator().
		Field("path", key, common.Required).
		Field("fileType", fileType, common.OneOf(constants.FileTypes...)).
		Field("filename", in.Filename, common.MaxLength(maxNameLength)).
		Err()
	if err != nil {
		return entity.Document{}, err
	}
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = path.Base(key)
	}
	return entity.Document{ID: uuid.New(), Filename: filename, Path: key, FileType: fileType}, nil
}

func (s *ReviewServer) GetReviewJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GetReviewJobRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := common.NewValidator().Field("jobId", req.JobID, common.UUID).Err(); err != nil {
		return nil, err
	}
	job, err := s.store.GetReviewJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	results, err := s.store.ListReviewResults(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []entity.ReviewResult{}
	}
	return encode(GetReviewJobResponse{Job: job, Results: results})
}

func (s *ReviewServer) OverrideResult(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req OverrideResultRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	err := common.NewValidator().
		Field("resultId", req.ResultID, common.UUID).
		Field("comment", req.Comment, common.MaxLength(maxCommentLength)).
		Err()
	if err != nil {
		return nil, err
	}
	res, err := s.store.OverrideResult(ctx, req.ResultID, req.Comment)
	if err != nil {
		return nil, err
	}
	s.logger.Info("review.result.overridden",
		"req_id", common.RequestIDFromContext(ctx),
		"result_id", req.ResultID,
		"job_id", res.ReviewJobID,
	)
	return encode(OverrideResultResponse{Result: res})
}

func (s *ReviewServer) ListDeadLetters(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	msgs, err := s.queue.DeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []async.QueueMessage{}
	}
	return encode(ListDeadLettersResponse{Messages: msgs})
}

// notFoundDocument maps a missing object onto the service-level sentinel.
func notFoundDocument(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("document %q: %w", key, common.ErrNotFound)
	}
	return fmt.Errorf("read document %q: %w", key, err)
}
