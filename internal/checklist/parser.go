package checklist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/review-orchestrator/internal/llm"
)

// ErrMalformedOutput marks model text that is not a checklist.
var ErrMalformedOutput = errors.New("malformed model output")

// MalformedOutputError keeps the offending text next to the reason it was
// rejected.
type MalformedOutputError struct {
	Text  string
	Cause error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedOutput, e.Cause)
}

func (e *MalformedOutputError) Unwrap() error { return e.Cause }

func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }

// ProvisionalItem is a parsed item whose parent is still a position in the
// same page's output.
type ProvisionalItem struct {
	Name        string
	Description string
	LocalParent *int
}

var fencedJSON = regexp.MustCompile("(?s)```(?i:json)[ \t]*\r?\n(.*?)```")

// Parse turns raw model text for one page into provisional items. The whole
// text is tried as JSON first, then the first ```json fenced block. Anything
// else is a *MalformedOutputError.
func Parse(text string) ([]ProvisionalItem, error) {
	body := strings.TrimSpace(text)

	var root any
	if err := decodeJSON([]byte(body), &root); err != nil {
		m := fencedJSON.FindStringSubmatch(body)
		if m == nil {
			return nil, malformed(text, fmt.Errorf("not json and no fenced json block: %w", err))
		}
		if ferr := decodeJSON([]byte(strings.TrimSpace(m[1])), &root); ferr != nil {
			return nil, malformed(text, fmt.Errorf("fenced json block: %w", ferr))
		}
	}

	arr, err := itemArray(root)
	if err != nil {
		return nil, malformed(text, err)
	}

	canonical, err := json.Marshal(arr)
	if err != nil {
		return nil, malformed(text, err)
	}
	if err := llm.ValidateJSONAgainstSchema(llm.BuildChecklistJSONSchema(), canonical); err != nil {
		return nil, malformed(text, err)
	}

	out := make([]ProvisionalItem, 0, len(arr))
	for i, el := range arr {
		obj := el.(map[string]any) // shape enforced by the schema
		item := ProvisionalItem{Name: strings.TrimSpace(obj["name"].(string))}
		if d, ok := obj["description"].(string); ok {
			item.Description = d
		}
		parent, err := localParent(obj["parent_id"])
		if err != nil {
			return nil, malformed(text, fmt.Errorf("item %d: %w", i, err))
		}
		item.LocalParent = parent
		out = append(out, item)
	}
	return out, nil
}

func malformed(text string, cause error) error {
	return &MalformedOutputError{Text: text, Cause: cause}
}

func decodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after json value")
	}
	return nil
}

// itemArray accepts a bare array or an object wrapping one under "items" or
// "checklist".
func itemArray(root any) ([]any, error) {
	switch v := root.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range []string{"items", "checklist"} {
			if raw, ok := v[key]; ok {
				arr, ok := raw.([]any)
				if !ok {
					return nil, fmt.Errorf("%q is not an array", key)
				}
				return arr, nil
			}
		}
		return nil, errors.New("object has no items array")
	default:
		return nil, fmt.Errorf("unexpected json %T", root)
	}
}

func localParent(v any) (*int, error) {
	var n int64
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return nil, fmt.Errorf("parent_id %s is not an integer", t)
			}
			i = int64(f)
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parent_id %q is not an integer", t)
		}
		n = i
	default:
		return nil, fmt.Errorf("parent_id has type %T", v)
	}
	if n < 0 || n > math.MaxInt32 {
		return nil, fmt.Errorf("parent_id %d out of range", n)
	}
	p := int(n)
	return &p, nil
}
