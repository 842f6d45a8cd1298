package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/review-orchestrator/constants"
	"github.com/joseph-ayodele/review-orchestrator/internal/entity"
	"github.com/joseph-ayodele/review-orchestrator/internal/llm"
)

const (
	DefaultConfidence       = 0.5
	DefaultExplanation      = "No explanation provided"
	DefaultShortExplanation = "No short explanation provided"
)

// ItemVerdict is a normalized item-evaluation response.
type ItemVerdict struct {
	Verdict          constants.Verdict
	Confidence       float64
	Explanation      string
	ShortExplanation string
	ExtractedText    string
	ReviewType       string
	Usage            entity.Usage
	Defaulted        []string
}

func verdictSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"result":           map[string]any{"type": "string"},
			"confidence":       map[string]any{"type": []string{"number", "string"}},
			"explanation":      map[string]any{"type": "string"},
			"shortExplanation": map[string]any{"type": "string"},
			"extractedText":    map[string]any{"type": []string{"string", "array", "null"}},
			"inputTokens":      map[string]any{"type": "number", "minimum": 0},
			"outputTokens":     map[string]any{"type": "number", "minimum": 0},
			"totalCost":        map[string]any{"type": "number", "minimum": 0},
		},
	}
}

// DecodeItemVerdict validates an item-evaluation response and fills the
// fields the agent left out: result fail, confidence 0.5, and placeholder
// explanations. A body that is not a JSON object is an error.
func DecodeItemVerdict(body []byte, logger *slog.Logger) (ItemVerdict, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := llm.ValidateJSONAgainstSchema(verdictSchema(), body); err != nil {
		return ItemVerdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ItemVerdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var out ItemVerdict
	if s, ok := m["result"].(string); ok {
		v, known := constants.Canonicalize(s)
		out.Verdict = v
		if !known {
			out.Defaulted = append(out.Defaulted, "result("+s+")")
		}
	} else {
		out.Verdict = constants.VerdictFail
		out.Defaulted = append(out.Defaulted, "result")
	}

	out.Confidence = DefaultConfidence
	switch c := m["confidence"].(type) {
	case float64:
		out.Confidence = clamp01(c)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil {
			out.Confidence = clamp01(f)
		} else {
			out.Defaulted = append(out.Defaulted, "confidence")
		}
	default:
		out.Defaulted = append(out.Defaulted, "confidence")
	}

	out.Explanation = stringOr(m, "explanation", DefaultExplanation, &out.Defaulted)
	out.ShortExplanation = stringOr(m, "shortExplanation", DefaultShortExplanation, &out.Defaulted)

	switch t := m["extractedText"].(type) {
	case string:
		out.ExtractedText = t
	case []any:
		b, _ := json.Marshal(t)
		out.ExtractedText = string(b)
	}
	if rt, ok := m["reviewType"].(string); ok {
		out.ReviewType = rt
	}

	out.Usage = entity.Usage{
		InputTokens:  int64(number(m["inputTokens"])),
		OutputTokens: int64(number(m["outputTokens"])),
		TotalCost:    number(m["totalCost"]),
	}

	if len(out.Defaulted) > 0 {
		logger.Debug("agent.verdict.defaults_applied", "fields", out.Defaulted)
	}
	return out, nil
}

func stringOr(m map[string]any, key, def string, defaulted *[]string) string {
	if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	*defaulted = append(*defaulted, key)
	return def
}

func number(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return 0
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// NextActionResult is a decoded next-action response.
type NextActionResult struct {
	Text  string
	Usage entity.Usage
}

// DecodeNextAction reads {"status":"success","nextAction":..., "metrics":{...}}.
// Any other status, or an empty nextAction, is an error.
func DecodeNextAction(body []byte) (NextActionResult, error) {
	var doc struct {
		Status     string `json:"status"`
		NextAction string `json:"nextAction"`
		Message    string `json:"message"`
		Metrics    struct {
			InputTokens  int64   `json:"inputTokens"`
			OutputTokens int64   `json:"outputTokens"`
			TotalCost    float64 `json:"totalCost"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return NextActionResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.Status != "success" {
		return NextActionResult{}, fmt.Errorf("%w: status %q: %s", ErrMalformedResponse, doc.Status, doc.Message)
	}
	if strings.TrimSpace(doc.NextAction) == "" {
		return NextActionResult{}, fmt.Errorf("%w: empty nextAction", ErrMalformedResponse)
	}
	return NextActionResult{
		Text: doc.NextAction,
		Usage: entity.Usage{
			InputTokens:  doc.Metrics.InputTokens,
			OutputTokens: doc.Metrics.OutputTokens,
			TotalCost:    doc.Metrics.TotalCost,
		},
	}, nil
}
