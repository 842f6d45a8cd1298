package llm

import (
	"strconv"
	"strings"
)

const maxPageChars = 12000

// BuildChecklistSystemPrompt states the output contract for extraction.
func BuildChecklistSystemPrompt() string {
	parts := []string{
		"You convert a page of a review guideline into a checklist.",
		"Return ONLY a JSON array. Each element is an object with 'name', 'description' and 'parent_id'.",
		"'parent_id' is the 0-based index of the parent element in the same array, or null for top-level items.",
		"Group headings become parents with an empty 'description'; concrete checks are leaves with a description of what to verify.",
		"Do not invent checks that are not on the page.",
	}
	return strings.Join(parts, " ")
}

// BuildChecklistUserPrompt packages the page text and, on a retry, the
// previous output with the reason it was rejected.
func BuildChecklistUserPrompt(req ChecklistRequest) string {
	var b strings.Builder
	if name := strings.TrimSpace(req.DocumentName); name != "" {
		b.WriteString("Document: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	if req.PageNumber > 0 {
		b.WriteString("Page: ")
		b.WriteString(strconv.Itoa(req.PageNumber))
		b.WriteString("\n")
	}

	text := strings.TrimSpace(req.PageText)
	b.WriteString("\nPage text:\n")
	if len(text) > maxPageChars {
		b.WriteString(text[:maxPageChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}

	if fb := strings.TrimSpace(req.Feedback); fb != "" {
		b.WriteString("\n\nYour previous answer could not be parsed: ")
		b.WriteString(fb)
		if prev := strings.TrimSpace(req.PreviousOutput); prev != "" {
			b.WriteString("\nPrevious answer:\n")
			b.WriteString(prev)
		}
		b.WriteString("\nAnswer again with a valid JSON array only.")
	}
	return b.String()
}
