package constants

// JobStatus is the canonical status for rows in review_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "pending"    // submitted, waiting in queue
	JobStatusProcessing JobStatus = "processing" // executor running
	JobStatusCompleted  JobStatus = "completed"  // terminal
	JobStatusFailed     JobStatus = "failed"     // terminal failure
)

// JobStatuses lists every JobStatus value for schema enum validation.
var JobStatuses = []string{
	string(JobStatusPending),
	string(JobStatusProcessing),
	string(JobStatusCompleted),
	string(JobStatusFailed),
}

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ResultStatus is the lifecycle of a single review_results row.
type ResultStatus string

const (
	ResultStatusPending   ResultStatus = "pending"
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusFailed    ResultStatus = "failed"
)

var ResultStatuses = []string{
	string(ResultStatusPending),
	string(ResultStatusCompleted),
	string(ResultStatusFailed),
}

// NextActionStatus records what happened to the optional follow-up generation.
type NextActionStatus string

const (
	NextActionSkipped   NextActionStatus = "skipped"
	NextActionCompleted NextActionStatus = "completed"
	NextActionFailed    NextActionStatus = "failed"
)

var NextActionStatuses = []string{
	string(NextActionSkipped),
	string(NextActionCompleted),
	string(NextActionFailed),
}

// Error codes written into review_jobs.error_detail.
const (
	ErrCodeQueueTimeout   = "QUEUE_TIMEOUT_ERROR"
	ErrCodeDocumentFetch  = "DOCUMENT_FETCH_ERROR"
	ErrCodeChecklistEmpty = "CHECKLIST_EMPTY_ERROR"
	ErrCodeDeadLetter     = "DEAD_LETTER_ERROR"
	ErrCodeItemNotFound   = "CHECK_ITEM_NOT_FOUND_ERROR"
	ErrCodeQueueSubmit    = "QUEUE_SUBMIT_ERROR"
)
