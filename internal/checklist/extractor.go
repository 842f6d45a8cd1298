package checklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/llm"
)

// ExtractionError is returned when both the first attempt and the corrective
// retry produced unusable output. Both errors keep their model text.
type ExtractionError struct {
	Page     int
	FirstErr error
	RetryErr error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("page %d: extraction failed after retry: first: %v; retry: %v", e.Page, e.FirstErr, e.RetryErr)
}

func (e *ExtractionError) Unwrap() []error { return []error{e.FirstErr, e.RetryErr} }

// ArtifactWriter stores extraction artifacts.
type ArtifactWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// ItemWriter persists extracted check items.
type ItemWriter interface {
	InsertCheckItems(ctx context.Context, checkListID uuid.UUID, items []entity.CheckItem) error
}

// Page is one page of source text.
type Page struct {
	Number int
	Text   string
}

type ExtractRequest struct {
	CheckListID  uuid.UUID
	DocumentName string
	Pages        []Page
}

type ExtractResult struct {
	Items     []entity.CheckItem
	Artifacts []string
	Usage     entity.Usage
}

// Extractor runs generation, parsing and id remapping page by page.
type Extractor struct {
	gen       llm.ChecklistGenerator
	artifacts ArtifactWriter
	items     ItemWriter
	newID     IDFunc
	logger    *slog.Logger
}

type ExtractorOption func(*Extractor)

func WithIDFunc(fn IDFunc) ExtractorOption {
	return func(e *Extractor) { e.newID = fn }
}

func WithLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

func NewExtractor(gen llm.ChecklistGenerator, artifacts ArtifactWriter, items ItemWriter, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		gen:       gen,
		artifacts: artifacts,
		items:     items,
		newID:     DefaultIDFunc,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArtifactKey is where the item array of one page is stored.
func ArtifactKey(checkListID uuid.UUID, page int) string {
	return fmt.Sprintf("checklists/%s/page-%d.json", checkListID, page)
}

// Extract processes pages in order and stores the items of each page as soon
// as the page succeeds.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	if req.CheckListID == uuid.Nil {
		return ExtractResult{}, common.NewAppError("INVALID_REQUEST", "check list id is required", common.ErrInvalidInput)
	}
	if len(req.Pages) == 0 {
		return ExtractResult{}, common.NewAppError("INVALID_REQUEST", "no pages to extract", common.ErrInvalidInput)
	}

	start := time.Now()
	var res ExtractResult
	for _, page := range req.Pages {
		items, usage, err := e.ExtractPage(ctx, req.DocumentName, page)
		res.Usage.Add(usage)
		if err != nil {
			e.logger.Error("checklist.extract.page_failed",
				"check_list_id", req.CheckListID, "page", page.Number, "error", err)
			return res, err
		}

		key := ArtifactKey(req.CheckListID, page.Number)
		if err := e.writeArtifact(ctx, key, items); err != nil {
			return res, err
		}
		res.Artifacts = append(res.Artifacts, key)

		rows := make([]entity.CheckItem, 0, len(items))
		for _, it := range items {
			rows = append(rows, entity.CheckItem{
				ID:          it.ID,
				CheckListID: req.CheckListID,
				Name:        it.Name,
				Description: it.Description,
				ParentID:    it.ParentID,
			})
		}
		if e.items != nil && len(rows) > 0 {
			if err := e.items.InsertCheckItems(ctx, req.CheckListID, rows); err != nil {
				return res, fmt.Errorf("store items for page %d: %w", page.Number, err)
			}
		}
		res.Items = append(res.Items, rows...)
	}

	if len(res.Items) == 0 {
		return res, common.NewAppError(constants.ErrCodeChecklistEmpty, "no checklist items extracted", common.ErrValidation)
	}
	e.logger.Info("checklist.extract.ok",
		"check_list_id", req.CheckListID,
		"pages", len(req.Pages),
		"items", len(res.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// ExtractPage generates, parses and remaps one page. Malformed output gets
// exactly one corrective retry.
func (e *Extractor) ExtractPage(ctx context.Context, documentName string, page Page) ([]Item, entity.Usage, error) {
	var usage entity.Usage
	req := llm.ChecklistRequest{DocumentName: documentName, PageNumber: page.Number, PageText: page.Text}

	gen, err := e.gen.GenerateChecklist(ctx, req)
	if err != nil {
		return nil, usage, fmt.Errorf("generate page %d: %w", page.Number, err)
	}
	usage.Add(gen.Usage)

	parsed, firstErr := Parse(gen.Text)
	if firstErr != nil {
		if !errors.Is(firstErr, ErrMalformedOutput) {
			return nil, usage, firstErr
		}
		e.logger.Warn("checklist.extract.retry", "page", page.Number, "error", firstErr)

		req.Feedback = firstErr.Error()
		req.PreviousOutput = gen.Text
		gen, err = e.gen.GenerateChecklist(ctx, req)
		if err != nil {
			return nil, usage, fmt.Errorf("generate page %d retry: %w", page.Number, err)
		}
		usage.Add(gen.Usage)

		var retryErr error
		parsed, retryErr = Parse(gen.Text)
		if retryErr != nil {
			return nil, usage, &ExtractionError{Page: page.Number, FirstErr: firstErr, RetryErr: retryErr}
		}
	}

	items, err := Remap(parsed, e.newID)
	if err != nil {
		return nil, usage, fmt.Errorf("page %d: %w", page.Number, err)
	}
	return items, usage, nil
}

func (e *Extractor) writeArtifact(ctx context.Context, key string, items []Item) error {
	if e.artifacts == nil {
		return nil
	}
	if items == nil {
		items = []Item{}
	}
	body, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := e.artifacts.Put(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	return nil
}
