package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

// Source is the read side of the review store used for exports.
type Source interface {
	GetReviewJob(ctx context.Context, id uuid.UUID) (*entity.ReviewJob, error)
	GetCheckList(ctx context.Context, id uuid.UUID) (*entity.CheckList, error)
	ListReviewResults(ctx context.Context, jobID uuid.UUID) ([]entity.ReviewResult, error)
}

// Service produces XLSX bytes for a review job.
type Service struct {
	src    Source
	logger *slog.Logger
}

func NewService(src Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{src: src, logger: logger}
}

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
	maxCellText  = 1000
)

var resultHeaders = []string{
	"Check Item",
	"Status",
	"Verdict",
	"Confidence",
	"Summary",
	"Explanation",
	"Extracted Text",
	"User Override",
	"User Comment",
	"Error",
}

// ExportReviewResultsXLSX returns a workbook with one row per review result,
// in checklist order, and a summary sheet for the job.
func (s *Service) ExportReviewResultsXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	start := time.Now()

	job, err := s.src.GetReviewJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load review job: %w", err)
	}
	checklistName := ""
	if cl, err := s.src.GetCheckList(ctx, job.CheckListID); err == nil {
		checklistName = cl.Name
	} else {
		s.logger.Warn("export.checklist.missing", "job_id", jobID.String(), "err", err)
	}
	results, err := s.src.ListReviewResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("query review results: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// The default workbook carries "Sheet1"; rename it rather than leave it empty.
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(resultsSheet)
	f.SetActiveSheet(activeIndex)

	if err := f.SetSheetRow(resultsSheet, "A1", &resultHeaders); err != nil {
		return nil, err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(resultsSheet, 1, 1, style)
	}

	for i, r := range results {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := resultRow(r)
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(resultsSheet, "A", "A", 32) // item
	_ = f.SetColWidth(resultsSheet, "B", "D", 12) // status, verdict, confidence
	_ = f.SetColWidth(resultsSheet, "E", "E", 40)
	_ = f.SetColWidth(resultsSheet, "F", "G", 60)
	_ = f.SetColWidth(resultsSheet, "H", "H", 14)
	_ = f.SetColWidth(resultsSheet, "I", "J", 40)
	_ = f.AutoFilter(resultsSheet, fmt.Sprintf("A1:J%d", len(results)+1), nil)

	if err := writeSummary(f, job, checklistName, results); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"job_id", jobID.String(),
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func resultRow(r entity.ReviewResult) []any {
	verdict := ""
	if r.Verdict != nil {
		verdict = string(*r.Verdict)
	}
	var confidence any = ""
	if r.Confidence != nil {
		confidence = *r.Confidence
	}
	override := "No"
	if r.UserOverride {
		override = "Yes"
	}
	comment, errDetail := "", ""
	if r.UserComment != nil {
		comment = *r.UserComment
	}
	if r.ErrorDetail != nil {
		errDetail = *r.ErrorDetail
	}
	name := r.CheckItemName
	if name == "" {
		name = r.CheckItemID
	}
	return []any{
		name,
		string(r.Status),
		verdict,
		confidence,
		truncate(r.ShortExplanation, maxCellText),
		truncate(r.Explanation, maxCellText),
		truncate(r.ExtractedText, maxCellText),
		override,
		truncate(comment, maxCellText),
		truncate(errDetail, maxCellText),
	}
}

func writeSummary(f *excelize.File, job *entity.ReviewJob, checklistName string, results []entity.ReviewResult) error {
	counts := map[constants.Verdict]int{}
	failed := 0
	for _, r := range results {
		if r.Status == constants.ResultStatusFailed {
			failed++
			continue
		}
		if r.Verdict != nil {
			counts[*r.Verdict]++
		}
	}
	nextAction := ""
	if job.NextAction != nil {
		nextAction = *job.NextAction
	}
	completed := ""
	if job.CompletedAt != nil {
		completed = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	rows := [][]any{
		{"Review Job", job.ID.String()},
		{"Name", job.Name},
		{"Checklist", checklistName},
		{"Status", string(job.Status)},
		{"Completed At", completed},
		{"Pass", counts[constants.VerdictPass]},
		{"Fail", counts[constants.VerdictFail]},
		{"Warning", counts[constants.VerdictWarning]},
		{"Evaluation Errors", failed},
		{"Input Tokens", job.InputTokens},
		{"Output Tokens", job.OutputTokens},
		{"Total Cost", job.TotalCost},
		{"Next Action", truncate(nextAction, maxCellText)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx summary: %w", err)
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	_ = f.SetColWidth(summarySheet, "B", "B", 60)
	return nil
}

// truncate caps s at n runes after NFC composition, so a cut never separates
// a letter from its combining marks.
func truncate(s string, n int) string {
	s = norm.NFC.String(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
