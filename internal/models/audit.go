package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreated        EventType = "CREATED"
	EventStatusChanged  EventType = "STATUS_CHANGED"
	EventRetryAttempted EventType = "RETRY_ATTEMPTED"
	EventReconciled     EventType = "RECONCILED"
	EventFailed         EventType = "FAILED"
)

// AuditLog — append-only история переходов платежа. Строки никогда не
// обновляются и не удаляются; пишутся в той же транзакции, что и сам переход.
// metadata хранится как jsonb (открытая key-value карта).
type AuditLog struct {
	ID        int64          `db:"id"`
	PaymentID uuid.UUID      `db:"payment_id"`
	EventType EventType      `db:"event_type"`
	OldStatus *PaymentStatus `db:"old_status"`
	NewStatus *PaymentStatus `db:"new_status"`
	Metadata  map[string]any `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

func NewAuditLog(paymentID uuid.UUID, event EventType, old, new *PaymentStatus, metadata map[string]any) *AuditLog {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &AuditLog{
		PaymentID: paymentID,
		EventType: event,
		OldStatus: old,
		NewStatus: new,
		Metadata:  metadata,
	}
}

func StatusPtr(s PaymentStatus) *PaymentStatus { return &s }
