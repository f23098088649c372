package models

import (
	"encoding/json"
	"time"
)

// OutboxMessage — событие жизненного цикла платежа, записанное в той же
// транзакции, что и переход статуса. Отдельный воркер доставляет его в Kafka.
type OutboxMessage struct {
	ID        int             `db:"id"`
	MessageID string          `db:"message_id"` // UUID
	Topic     string          `db:"topic"`
	Payload   json.RawMessage `db:"payload"` // JSON (хранится как JSONB)

	Status     string     `db:"status"` // pending, sent, failed
	RetryCount int        `db:"retry_count"`
	CreatedAt  time.Time  `db:"created_at"`
	SentAt     *time.Time `db:"sent_at"` // NULL, пока не отправили
	LastError  *string    `db:"last_error"`
}
