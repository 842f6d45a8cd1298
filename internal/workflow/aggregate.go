package workflow

import (
	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
)

// Counts summarizes the results of one job.
type Counts struct {
	Pass    int
	Fail    int
	Warning int
	Failed  int // evaluation failed, no verdict
	Pending int
	Usage   entity.Usage
}

// Aggregate tallies verdicts and rolls token and cost usage up from results.
func Aggregate(results []entity.ReviewResult) Counts {
	var c Counts
	for _, r := range results {
		c.Usage.Add(r.Usage)
		switch r.Status {
		case constants.ResultStatusFailed:
			c.Failed++
			continue
		case constants.ResultStatusPending:
			c.Pending++
			continue
		}
		if r.Verdict == nil {
			continue
		}
		switch *r.Verdict {
		case constants.VerdictPass:
			c.Pass++
		case constants.VerdictFail:
			c.Fail++
		case constants.VerdictWarning:
			c.Warning++
		}
	}
	return c
}

// buildTemplateData shapes results for the next-action prompt.
func buildTemplateData(checklistName string, items []entity.CheckItem, results []entity.ReviewResult, docs []DocumentView, counts Counts) TemplateData {
	byID := make(map[string]entity.CheckItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	data := TemplateData{
		ChecklistName: checklistName,
		PassCount:     counts.Pass,
		FailCount:     counts.Fail,
		FailedItems:   []ResultView{},
		UserOverrides: []ResultView{},
		AllResults:    make([]ResultView, 0, len(results)),
		Documents:     docs,
	}
	for _, r := range results {
		it := byID[r.CheckItemID]
		view := ResultView{
			CheckList:       CheckRef{Name: it.Name, Description: it.Description},
			ConfidenceScore: r.Confidence,
			Explanation:     r.Explanation,
			ExtractedText:   r.ExtractedText,
			UserOverride:    r.UserOverride,
		}
		if view.CheckList.Name == "" {
			view.CheckList.Name = r.CheckItemName
		}
		if r.Verdict != nil {
			view.Result = string(*r.Verdict)
		}
		if r.UserComment != nil {
			view.UserComment = *r.UserComment
		}
		data.AllResults = append(data.AllResults, view)
		if r.Verdict != nil && *r.Verdict == constants.VerdictFail && !r.UserOverride {
			data.FailedItems = append(data.FailedItems, view)
		}
		if r.UserOverride {
			data.UserOverrides = append(data.UserOverrides, view)
		}
	}
	return data
}
