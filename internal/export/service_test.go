package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/common"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

type fakeSource struct {
	job       *entity.ReviewJob
	checklist *entity.CheckList
	results   []entity.ReviewResult
	listErr   error
}

func (f *fakeSource) GetReviewJob(_ context.Context, id uuid.UUID) (*entity.ReviewJob, error) {
	if f.job == nil || f.job.ID != id {
		return nil, common.ErrNotFound
	}
	return f.job, nil
}

func (f *fakeSource) GetCheckList(_ context.Context, id uuid.UUID) (*entity.CheckList, error) {
	if f.checklist == nil || f.checklist.ID != id {
		return nil, common.ErrNotFound
	}
	return f.checklist, nil
}

func (f *fakeSource) ListReviewResults(context.Context, uuid.UUID) ([]entity.ReviewResult, error) {
	return f.results, f.listErr
}

func verdictPtr(v constants.Verdict) *constants.Verdict { return &v }
func floatPtr(v float64) *float64                       { return &v }
func stringPtr(v string) *string                        { return &v }

func sampleSource() *fakeSource {
	clID := uuid.New()
	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &entity.ReviewJob{
		ID:           uuid.New(),
		CheckListID:  clID,
		Name:         "Q1 contract",
		Status:       constants.JobStatusCompleted,
		InputTokens:  120,
		OutputTokens: 40,
		TotalCost:    0.25,
		NextAction:   stringPtr("Ask the vendor for a signed copy."),
		CompletedAt:  &done,
	}
	return &fakeSource{
		job:       job,
		checklist: &entity.CheckList{ID: clID, Name: "Contract"},
		results: []entity.ReviewResult{
			{
				CheckItemID:      "a",
				CheckItemName:    "Signature",
				Status:           constants.ResultStatusCompleted,
				Verdict:          verdictPtr(constants.VerdictPass),
				Confidence:       floatPtr(0.9),
				ShortExplanation: "signed",
				Explanation:      "Both parties signed on page 4.",
				ExtractedText:    "Signed: J. Doe",
			},
			{
				CheckItemID:   "b",
				CheckItemName: "Date",
				Status:        constants.ResultStatusCompleted,
				Verdict:       verdictPtr(constants.VerdictFail),
				Confidence:    floatPtr(0.6),
				UserOverride:  true,
				UserComment:   stringPtr("date is in the annex"),
			},
			{
				CheckItemID: "c",
				Status:      constants.ResultStatusFailed,
				ErrorDetail: stringPtr("timeout after 3 attempt(s)"),
			},
		},
	}
}

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestExportReviewResultsXLSX(t *testing.T) {
	src := sampleSource()
	svc := NewService(src, nil)

	data, err := svc.ExportReviewResultsXLSX(context.Background(), src.job.ID)
	require.NoError(t, err)

	f := openWorkbook(t, data)
	assert.Equal(t, []string{resultsSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(resultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, resultHeaders, rows[0])

	assert.Equal(t, []string{"Signature", "completed", "pass", "0.9", "signed", "Both parties signed on page 4.", "Signed: J. Doe", "No"}, rows[1])
	assert.Equal(t, "Date", rows[2][0])
	assert.Equal(t, "fail", rows[2][2])
	assert.Equal(t, "Yes", rows[2][7])
	assert.Equal(t, "date is in the annex", rows[2][8])

	// An unnamed item falls back to its id.
	assert.Equal(t, "c", rows[3][0])
	assert.Equal(t, "failed", rows[3][1])
	assert.Equal(t, "timeout after 3 attempt(s)", rows[3][9])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	got := map[string]string{}
	for _, r := range summary {
		if len(r) == 2 {
			got[r[0]] = r[1]
		}
	}
	assert.Equal(t, "Contract", got["Checklist"])
	assert.Equal(t, "completed", got["Status"])
	assert.Equal(t, "1", got["Pass"])
	assert.Equal(t, "1", got["Fail"])
	assert.Equal(t, "0", got["Warning"])
	assert.Equal(t, "1", got["Evaluation Errors"])
	assert.Equal(t, "120", got["Input Tokens"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got["Completed At"])
	assert.Equal(t, "Ask the vendor for a signed copy.", got["Next Action"])
}

func TestExportReviewResultsXLSX_MissingChecklistStillExports(t *testing.T) {
	src := sampleSource()
	src.checklist = nil

	data, err := NewService(src, nil).ExportReviewResultsXLSX(context.Background(), src.job.ID)
	require.NoError(t, err)

	rows, err := openWorkbook(t, data).GetRows(resultsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestExportReviewResultsXLSX_Errors(t *testing.T) {
	src := sampleSource()
	svc := NewService(src, nil)

	_, err := svc.ExportReviewResultsXLSX(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	src.listErr = errors.New("db down")
	_, err = svc.ExportReviewResultsXLSX(context.Background(), src.job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "é", truncate("éèê", 1))
	assert.Equal(t, "é", truncate("e\u0301x", 1))
	assert.Equal(t, 10, len([]rune(truncate(strings.Repeat("x", 50), 10))))
}
