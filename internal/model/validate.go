package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateWindow checks a single window. field prefixes error field names.
func ValidateWindow(w TimeWindow, field string) []FieldError {
	var ve ValidationError
	if !w.Start.IsValid() {
		ve.add(field+".start", "out of range")
	}
	if !w.End.IsValid() {
		ve.add(field+".end", "out of range")
	}
	switch {
	case w.Start == w.End && !w.Wrap:
		ve.add(field, "start equals end (%s); set wrap = true for a full-day window", w.Start)
	case w.Start < w.End && w.Wrap:
		ve.add(field+".wrap", "set but %s-%s does not cross midnight", w.Start, w.End)
	}
	return ve.Errors
}

// ValidateRule checks a rule for constraint violations.
// It returns a *ValidationError if any checks fail, or nil if the rule is valid.
func ValidateRule(r *GateRule) error {
	var ve ValidationError

	if strings.TrimSpace(r.ID) == "" {
		ve.add("id", "is required")
	}
	if !r.Mode.IsValid() {
		ve.add("mode", "invalid value %q", r.Mode)
	}
	if len(r.Actions) == 0 {
		ve.add("actions", "at least one action is required")
	}
	for i, a := range r.Actions {
		if strings.TrimSpace(a) == "" {
			ve.add(fmt.Sprintf("actions[%d]", i), "is empty")
		}
	}
	if len(r.Windows) == 0 {
		ve.add("windows", "at least one window is required")
	}
	for i, w := range r.Windows {
		ve.Errors = append(ve.Errors, ValidateWindow(w, fmt.Sprintf("windows[%d]", i))...)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
