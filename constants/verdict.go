package constants

import (
	"strings"
)

// Verdict is the per-item judgement returned by the review agent.
type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
	VerdictWarning Verdict = "warning"
)

var allVerdicts = []Verdict{
	VerdictPass,
	VerdictFail,
	VerdictWarning,
}

// VerdictValues lists every Verdict for schema enum validation.
func VerdictValues() []string {
	result := make([]string, len(allVerdicts))
	for i, v := range allVerdicts {
		result[i] = string(v)
	}
	return result
}

// Canonicalize maps loose model output onto a Verdict. Unknown labels map to
// VerdictFail with ok=false so callers can flag the row.
func Canonicalize(input string) (Verdict, bool) {
	if input == "" {
		return VerdictFail, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]Verdict{
		"ok":            VerdictPass,
		"passed":        VerdictPass,
		"compliant":     VerdictPass,
		"yes":           VerdictPass,
		"ng":            VerdictFail,
		"failed":        VerdictFail,
		"non-compliant": VerdictFail,
		"no":            VerdictFail,
		"warn":          VerdictWarning,
		"needs review":  VerdictWarning,
		"partial":       VerdictWarning,
	}

	if v, ok := synonyms[normalized]; ok {
		return v, true
	}

	for _, v := range allVerdicts {
		if normalized == string(v) {
			return v, true
		}
	}

	return VerdictFail, false
}
