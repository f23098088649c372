package kafka

import (
	"time"

	"payment_processing/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы событий жизненного цикла платежа (исходящий топик).
const (
	EventPaymentCreated   = "payment.created"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// PaymentEvent – payload outbox-сообщения для downstream-потребителей.
type PaymentEvent struct {
	EventType  string          `json:"event_type"`
	PaymentID  string          `json:"payment_id"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewPaymentEvent(eventType string, p *models.Payment) *PaymentEvent {
	return &PaymentEvent{
		EventType:  eventType,
		PaymentID:  p.PaymentID,
		Status:     string(p.Status),
		Amount:     p.Amount,
		Currency:   p.Currency,
		OccurredAt: time.Now().UTC(),
	}
}

// PaymentRequestMessage – заявка на платёж из входящего топика. Ключ
// идемпотентности кладётся в payload, заголовки Kafka не используются.
type PaymentRequestMessage struct {
	models.PaymentRequest
	IdempotencyKey *uuid.UUID `json:"idempotency_key,omitempty"`
}
