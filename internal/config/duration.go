package config

import (
	"fmt"
	"strings"
	"time"
)

// FieldError reports a malformed config value. It matches ErrInvalid.
type FieldError struct {
	Field string
	Msg   string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Msg, e.Err)
	}
	return e.Field + ": " + e.Msg
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrInvalid }

// ParseDurationField parses an optional Go duration string ("90s", "5m").
// An empty value yields 0.
func ParseDurationField(field, raw string) (time.Duration, error) {
	return ParseDurationOrDefault(field, raw, 0)
}

// ParseDurationOrDefault is ParseDurationField with def standing in for an
// empty or zero value.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, &FieldError{Field: field, Msg: fmt.Sprintf("invalid duration %q", raw), Err: err}
	case d < 0:
		return 0, &FieldError{Field: field, Msg: "must not be negative"}
	case d == 0:
		return def, nil
	}
	return d, nil
}
