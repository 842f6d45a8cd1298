package agent

import (
	"strings"

	"github.com/joseph-ayodele/review-orchestrator/constants"
)

// SessionID derives the runtime session id from the job and, for per-item
// calls, the item. The same inputs always give the same id.
func SessionID(jobID, itemID string) string {
	id := jobID
	if itemID != "" {
		id += "-" + itemID
	}
	if n := len(id); n < constants.SessionIDMinLength {
		id += strings.Repeat("0", constants.SessionIDMinLength-n)
	}
	if len(id) > constants.SessionIDMaxLength {
		id = id[:constants.SessionIDMaxLength]
	}
	return id
}
