package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
)

// ReviewResult is the verdict for one (ReviewJob, CheckItem) pair.
type ReviewResult struct {
	ID               uuid.UUID              `json:"id"`
	ReviewJobID      uuid.UUID              `json:"review_job_id"`
	CheckItemID      string                 `json:"check_item_id"`
	CheckItemName    string                 `json:"check_item_name,omitempty"`
	Status           constants.ResultStatus `json:"status"`
	Verdict          *constants.Verdict     `json:"verdict,omitempty"`
	Confidence       *float64               `json:"confidence,omitempty"`
	Explanation      string                 `json:"explanation,omitempty"`
	ShortExplanation string                 `json:"short_explanation,omitempty"`
	ExtractedText    string                 `json:"extracted_text,omitempty"`
	UserOverride     bool                   `json:"user_override"`
	UserComment      *string                `json:"user_comment,omitempty"`
	Usage            Usage                  `json:"usage"`
	ErrorDetail      *string                `json:"error_detail,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ResultOutcome is the single mutation applied to a pending ReviewResult.
type ResultOutcome struct {
	Status           constants.ResultStatus
	Verdict          *constants.Verdict
	Confidence       *float64
	Explanation      string
	ShortExplanation string
	ExtractedText    string
	Usage            Usage
	ErrorDetail      *string
}
