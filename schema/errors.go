package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaValidationFailed is matched by every FieldErrors value
var ErrSchemaValidationFailed = errors.New("schema validation failed")

// RootField is the field name used for diagnostics that apply to the whole payload
const RootField = "$"

// FieldError describes a single structural violation of a payload
type FieldError struct {
	// Field is the dotted path of the offending field, RootField for the payload itself
	Field string `json:"field"`
	// Reason is a short human readable explanation
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	if e.Field == RootField || e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field '%s' %s", e.Field, e.Reason)
}

// FieldErrors is the set of violations found while validating a payload
type FieldErrors []FieldError

// Error implements error interface
func (l FieldErrors) Error() string {
	parts := make([]string, 0, len(l))
	for _, v := range l {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%s: %s", ErrSchemaValidationFailed.Error(), strings.Join(parts, "; "))
}

// Unwrap allows errors.Is(err, ErrSchemaValidationFailed)
func (l FieldErrors) Unwrap() error {
	return ErrSchemaValidationFailed
}

// Fields returns the distinct offending field paths in order of first appearance
func (l FieldErrors) Fields() []string {
	seen := make(map[string]struct{}, len(l))
	ret := make([]string, 0, len(l))
	for _, v := range l {
		if _, ok := seen[v.Field]; ok {
			continue
		}
		seen[v.Field] = struct{}{}
		ret = append(ret, v.Field)
	}
	return ret
}

// Has reports whether field is among the offending fields
func (l FieldErrors) Has(field string) bool {
	for _, v := range l {
		if v.Field == field {
			return true
		}
	}
	return false
}

// Summary renders the violations as a bullet list, one per line
func (l FieldErrors) Summary() string {
	var b strings.Builder
	for idx, v := range l {
		if idx > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(v.String())
	}
	return b.String()
}
