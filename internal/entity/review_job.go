package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/constants"
)

// ReviewJob is one end-to-end evaluation of a document set against a checklist.
type ReviewJob struct {
	ID               uuid.UUID                   `json:"id"`
	CheckListID      uuid.UUID                   `json:"check_list_id"`
	Name             string                      `json:"name"`
	Status           constants.JobStatus         `json:"status"`
	Documents        []Document                  `json:"documents"`
	InputTokens      int64                       `json:"input_tokens"`
	OutputTokens     int64                       `json:"output_tokens"`
	TotalCost        float64                     `json:"total_cost"`
	ErrorDetail      *string                     `json:"error_detail,omitempty"`
	NextActionStatus *constants.NextActionStatus `json:"next_action_status,omitempty"`
	NextAction       *string                     `json:"next_action,omitempty"`
	UserID           string                      `json:"user_id,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	CompletedAt      *time.Time                  `json:"completed_at,omitempty"`
}

// Document is a source file attached to a review job.
type Document struct {
	ID       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	Path     string    `json:"path"` // object store key
	FileType string    `json:"file_type"`
}

// Usage is token and cost metadata reported by the agent.
type Usage struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalCost    float64 `json:"totalCost"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalCost += other.TotalCost
}

// JobCompletion is what the executor writes when a job reaches completed.
type JobCompletion struct {
	Usage            Usage
	NextActionStatus constants.NextActionStatus
	NextAction       *string
}
