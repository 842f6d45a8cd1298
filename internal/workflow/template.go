package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CheckRef names the checklist item a result belongs to.
type CheckRef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ResultView is one review result as the next-action agent sees it.
type ResultView struct {
	CheckList       CheckRef `json:"checkList"`
	Result          string   `json:"result,omitempty"`
	ConfidenceScore *float64 `json:"confidenceScore,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
	ExtractedText   string   `json:"extractedText,omitempty"`
	UserOverride    bool     `json:"userOverride"`
	UserComment     string   `json:"userComment,omitempty"`
}

type DocumentView struct {
	Filename string `json:"filename"`
}

// TemplateData feeds prompt template placeholders.
type TemplateData struct {
	ChecklistName string         `json:"checklistName"`
	PassCount     int            `json:"passCount"`
	FailCount     int            `json:"failCount"`
	FailedItems   []ResultView   `json:"failedItems"`
	UserOverrides []ResultView   `json:"userOverrides"`
	AllResults    []ResultView   `json:"allResults"`
	Documents     []DocumentView `json:"documents"`
}

// ExpandTemplate substitutes {{failed_items}}, {{user_overrides}},
// {{all_results}}, {{document_info}}, {{checklist_name}}, {{pass_count}} and
// {{fail_count}} in one pass. Substituted text is not expanded again.
func ExpandTemplate(template string, data TemplateData) string {
	r := strings.NewReplacer(
		"{{failed_items}}", formatFailedItems(data.FailedItems),
		"{{user_overrides}}", formatUserOverrides(data.UserOverrides),
		"{{all_results}}", formatAllResults(data.AllResults),
		"{{document_info}}", formatDocumentInfo(data.Documents),
		"{{checklist_name}}", data.ChecklistName,
		"{{pass_count}}", strconv.Itoa(data.PassCount),
		"{{fail_count}}", strconv.Itoa(data.FailCount),
	)
	return r.Replace(template)
}

func itemName(v ResultView) string {
	if v.CheckList.Name == "" {
		return "Unknown"
	}
	return v.CheckList.Name
}

func formatFailedItems(items []ResultView) string {
	if len(items) == 0 {
		return "No failed items."
	}
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		head := fmt.Sprintf("- **%s**: Failed", itemName(it))
		if it.ConfidenceScore != nil {
			head += fmt.Sprintf(" (Confidence: %d%%)", int(*it.ConfidenceScore*100))
		}
		lines := []string{head}
		if it.CheckList.Description != "" {
			lines = append(lines, "  Rule: "+it.CheckList.Description)
		}
		if it.Explanation != "" {
			lines = append(lines, "  Explanation: "+it.Explanation)
		}
		if quotes := parseExtractedText(it.ExtractedText); len(quotes) > 0 {
			if len(quotes) > 3 {
				quotes = quotes[:3]
			}
			lines = append(lines, `  Extracted text: "`+strings.Join(quotes, `", "`)+`"`)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func formatUserOverrides(items []ResultView) string {
	if len(items) == 0 {
		return "No user overrides."
	}
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		ai, to := "Unknown", "Pass"
		switch it.Result {
		case "pass":
			ai, to = "Pass", "Fail"
		case "fail":
			ai = "Fail"
		}
		lines := []string{fmt.Sprintf("- **%s**: AI judged %s -> User changed to %s", itemName(it), ai, to)}
		if it.UserComment != "" {
			lines = append(lines, "  Comment: "+it.UserComment)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

func formatAllResults(items []ResultView) string {
	if len(items) == 0 {
		return "No results available."
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		text := "Pending"
		switch it.Result {
		case "pass":
			text = "Pass"
		case "fail":
			text = "Fail"
		case "warning":
			text = "Warning"
		}
		override := ""
		if it.UserOverride {
			override = " (User Override)"
		}
		lines = append(lines, fmt.Sprintf("- **%s**: %s%s", itemName(it), text, override))
	}
	return strings.Join(lines, "\n")
}

func formatDocumentInfo(docs []DocumentView) string {
	if len(docs) == 0 {
		return "No documents."
	}
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		name := d.Filename
		if name == "" {
			name = "Unknown"
		}
		lines = append(lines, "- "+name)
	}
	return strings.Join(lines, "\n")
}

// parseExtractedText accepts a JSON array of quotes or plain text. Other JSON
// values yield nothing.
func parseExtractedText(v string) []string {
	if v == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(v), &parsed); err != nil {
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
		return nil
	}
	arr, ok := parsed.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprint(el))
		}
	}
	return out
}
