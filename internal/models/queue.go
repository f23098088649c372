package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultMaxRetries = 3

// QueueEntry — строка payment_queue. Существует, пока платёж не дошёл до
// терминального исхода штатным путём: SUCCESS и исчерпание ретраев её удаляют.
// На один платёж максимум одна строка (unique index по payment_id).
type QueueEntry struct {
	ID          int64     `db:"id"`
	PaymentID   uuid.UUID `db:"payment_id"`
	RetryCount  int       `db:"retry_count"`
	MaxRetries  int       `db:"max_retries"`
	NextRetryAt time.Time `db:"next_retry_at"`
	LastError   *string   `db:"last_error"`
	CreatedAt   time.Time `db:"created_at"`
}

func NewQueueEntry(paymentID uuid.UUID, now time.Time) *QueueEntry {
	return &QueueEntry{
		PaymentID:   paymentID,
		RetryCount:  0,
		MaxRetries:  DefaultMaxRetries,
		NextRetryAt: now,
	}
}

func (q *QueueEntry) CanRetry() bool {
	return q.RetryCount < q.MaxRetries
}

// IncrementRetry — retry_count++ и экспоненциальный backoff: 2^retry_count секунд
// от момента now (после инкремента: 2s, 4s, 8s, ...).
func (q *QueueEntry) IncrementRetry(now time.Time) {
	q.RetryCount++
	q.NextRetryAt = now.Add(time.Duration(1<<q.RetryCount) * time.Second)
}

func (q *QueueEntry) Due(now time.Time) bool {
	return q.CanRetry() && !q.NextRetryAt.After(now)
}
