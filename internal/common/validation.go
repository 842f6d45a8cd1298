package common

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// FieldError is a single failed rule on a request field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Rule checks one value and returns a message, or "" when the value passes.
type Rule func(value any) string

// Validator collects field errors for a request. Rules for a field stop at
// the first failure.
type Validator struct {
	errs []FieldError
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Field(name string, value any, rules ...Rule) *Validator {
	for _, rule := range rules {
		if msg := rule(value); msg != "" {
			v.errs = append(v.errs, FieldError{Field: name, Message: msg})
			break
		}
	}
	return v
}

func (v *Validator) Errors() []FieldError {
	return v.errs
}

// Err returns nil, or an error wrapping ErrInvalidInput that lists every
// failed field.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(v.errs))
	for _, e := range v.errs {
		parts = append(parts, e.Error())
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(parts, "; "))
}

// Required rejects nil, blank strings, nil pointers, uuid.Nil and empty
// slices or maps.
func Required(value any) string {
	const msg = "is required"
	switch v := value.(type) {
	case nil:
		return msg
	case string:
		if strings.TrimSpace(v) == "" {
			return msg
		}
		return ""
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return msg
		}
		return ""
	case uuid.UUID:
		if v == uuid.Nil {
			return msg
		}
		return ""
	case *uuid.UUID:
		if v == nil || *v == uuid.Nil {
			return msg
		}
		return ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		if rv.Len() == 0 {
			return msg
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return msg
		}
	}
	return ""
}

// NotEmpty rejects empty slices and maps.
func NotEmpty(value any) string {
	rv := reflect.ValueOf(value)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map) && rv.Len() > 0 {
		return ""
	}
	return "must not be empty"
}

// UUID accepts a non-nil uuid.UUID or a string that parses as one.
func UUID(value any) string {
	switch v := value.(type) {
	case uuid.UUID:
		if v == uuid.Nil {
			return "is required"
		}
		return ""
	case *uuid.UUID:
		if v == nil || *v == uuid.Nil {
			return "is required"
		}
		return ""
	case string:
		if _, err := uuid.Parse(v); err != nil {
			return "must be a valid UUID"
		}
		return ""
	}
	return "must be a UUID"
}

// MaxLength caps strings (and non-nil *string) at n runes.
func MaxLength(n int) Rule {
	return func(value any) string {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case *string:
			if v == nil {
				return ""
			}
			s = *v
		default:
			return ""
		}
		if utf8.RuneCountInString(s) > n {
			return fmt.Sprintf("must be at most %d characters", n)
		}
		return ""
	}
}

// OneOf accepts only the listed strings.
func OneOf(allowed ...string) Rule {
	return func(value any) string {
		s, _ := value.(string)
		for _, a := range allowed {
			if s == a {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))
	}
}
