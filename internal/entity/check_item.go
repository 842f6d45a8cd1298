package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CheckList is the root of a CheckItem tree.
type CheckList struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CheckItem is one node of a checklist tree. Interior nodes carry an empty
// description; only leaves are evaluated.
type CheckItem struct {
	ID          string    `json:"id"`
	CheckListID uuid.UUID `json:"check_list_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ParentID    *string   `json:"parent_id"`
}

// EvaluableItems returns the items the agent judges: those with a
// description, and those without children. Description-less parents are
// organizational only.
func EvaluableItems(items []CheckItem) []CheckItem {
	parents := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ParentID != nil {
			parents[*it.ParentID] = struct{}{}
		}
	}
	out := make([]CheckItem, 0, len(items))
	for _, it := range items {
		_, isParent := parents[it.ID]
		if !isParent || strings.TrimSpace(it.Description) != "" {
			out = append(out, it)
		}
	}
	return out
}
