package service

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError – заявка не прошла бизнес-валидацию. Fields: поле -> причина.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// Permanent – повтор не поможет, kafka-consumer коммитит такое сообщение.
func (e *ValidationError) Permanent() bool { return true }

// DuplicateRequestError – idempotency key уже привязан к другому платежу.
type DuplicateRequestError struct {
	ExistingPaymentID string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("duplicate request: payment %s already exists", e.ExistingPaymentID)
}

func (e *DuplicateRequestError) Permanent() bool { return true }
