package entity

import (
	"github.com/google/uuid"

	"github.com/joseph-ayodele/review-orchestrator/internal/tools"
)

// ReviewRequest is the queue message payload that starts (or re-runs part of)
// a review job.
type ReviewRequest struct {
	JobID             uuid.UUID            `json:"jobId"`
	CheckItemID       *string              `json:"checkItemId,omitempty"`
	ReviewResultID    *uuid.UUID           `json:"reviewResultId,omitempty"`
	DocumentPaths     []string             `json:"documentPaths"`
	CheckName         string               `json:"checkName,omitempty"`
	CheckDescription  string               `json:"checkDescription,omitempty"`
	LanguageName      string               `json:"languageName,omitempty"`
	MCPServers        []tools.MCPServer    `json:"mcpServers,omitempty"`
	ToolConfiguration *tools.Configuration `json:"toolConfiguration,omitempty"`
	ShouldGenerate    bool                 `json:"shouldGenerate,omitempty"`
	PromptTemplate    *PromptTemplate      `json:"promptTemplate,omitempty"`
	UserID            string               `json:"userId,omitempty"`
}

// PromptTemplate is a user-managed template for next-action generation.
type PromptTemplate struct {
	ID     string `json:"id,omitempty"`
	Prompt string `json:"prompt"`
}
