package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentResponse struct {
	PaymentID           string          `json:"payment_id"`
	Status              string          `json:"status"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	ConfirmationCode    *string         `json:"confirmation_code,omitempty"`
	FailureReason       *string         `json:"failure_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ProcessedAt         *time.Time      `json:"processed_at,omitempty"`
	EstimatedCompletion time.Time       `json:"estimated_completion"`
	Timeline            []TimelineEvent `json:"timeline,omitempty"`
}

// TimelineEvent — восстановленная из audit_log точка на таймлайне платежа.
type TimelineEvent struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

type PageResponse struct {
	Content       []*PaymentResponse `json:"content"`
	Page          int                `json:"page"`
	Size          int                `json:"size"`
	TotalElements int64              `json:"total_elements"`
	TotalPages    int                `json:"total_pages"`
	First         bool               `json:"first"`
	Last          bool               `json:"last"`
}

type ErrorResponse struct {
	Error             string            `json:"error"`
	Message           string            `json:"message"`
	ExistingPaymentID string            `json:"existing_payment_id,omitempty"`
	ValidationErrors  map[string]string `json:"validation_errors,omitempty"`
	Path              string            `json:"path,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// ToResponse — проекция платежа для публичного API.
func (p *Payment) ToResponse() *PaymentResponse {
	return &PaymentResponse{
		PaymentID:           p.PaymentID,
		Status:              string(p.Status),
		Amount:              p.Amount,
		Currency:            p.Currency,
		ConfirmationCode:    p.ConfirmationCode,
		FailureReason:       p.FailureReason,
		CreatedAt:           p.CreatedAt,
		ProcessedAt:         p.ProcessedAt,
		EstimatedCompletion: p.CreatedAt.Add(30 * time.Second),
	}
}
