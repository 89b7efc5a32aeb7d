package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfiguration is returned when the policy document is
	// malformed or violates a rule constraint.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrUnknownTimeZone is returned when the document names a zone that
	// cannot be resolved.
	ErrUnknownTimeZone = errors.New("unknown time zone")
)

// ConfigError describes one problem in a policy document.
// It matches ErrInvalidConfiguration with errors.Is.
type ConfigError struct {
	Rule    string // rule id, empty for document-level fields
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalidConfiguration.Error())
	b.WriteString(": ")
	if e.Rule != "" {
		fmt.Fprintf(&b, "rule %q: ", e.Rule)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfiguration
}

// ConfigErrors lists every ConfigError contained in err.
func ConfigErrors(err error) []*ConfigError {
	var out []*ConfigError
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if ce, ok := err.(*ConfigError); ok {
			out = append(out, ce)
			return
		}
		if j, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range j.Unwrap() {
				walk(e)
			}
			return
		}
		walk(errors.Unwrap(err))
	}
	walk(err)
	return out
}
