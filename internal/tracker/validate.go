package tracker

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validate(raw *RawEvent) error {
	if raw == nil {
		return &ValidationError{Field: "event", Message: "event is nil"}
	}

	if strings.TrimSpace(raw.UUID) == "" {
		return &ValidationError{Field: "uuid", Message: "uuid is required"}
	}

	if strings.TrimSpace(raw.Event) == "" {
		return &ValidationError{Field: "event", Message: "event is required"}
	}

	if len(raw.Event) > 128 {
		return &ValidationError{Field: "event", Message: "event name longer than 128 characters"}
	}

	return nil
}
