package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusSuccess    PaymentStatus = "SUCCESS"
	StatusFailed     PaymentStatus = "FAILED"
	StatusCancelled  PaymentStatus = "CANCELLED"
)

type PaymentType string

const (
	TypePix    PaymentType = "PIX"
	TypeTed    PaymentType = "TED"
	TypeBoleto PaymentType = "BOLETO"
)

// allowedTransitions — единственное место, где описан граф статусов.
// Любой переход не из этой таблицы отклоняется (в том числе SUCCESS -> PENDING).
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSuccess, StatusPending, StatusFailed},
	StatusSuccess:    {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

func CanTransition(from, to PaymentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

func ValidStatus(s PaymentStatus) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func ValidType(t PaymentType) bool {
	switch t {
	case TypePix, TypeTed, TypeBoleto:
		return true
	}
	return false
}

type Payment struct {
	ID             uuid.UUID  `db:"id"`
	PaymentID      string     `db:"payment_id"` // публичный идентификатор PAY-YYYY-NNNNNN
	IdempotencyKey *uuid.UUID `db:"idempotency_key"`

	Type     PaymentType     `db:"type"`
	Amount   decimal.Decimal `db:"amount"`
	Currency string          `db:"currency"`
	Status   PaymentStatus   `db:"status"`

	SenderDocument string `db:"sender_document"`
	SenderBankCode string `db:"sender_bank_code"`
	SenderAccount  string `db:"sender_account"`

	ReceiverPixKey     string `db:"receiver_pix_key"`
	ReceiverPixKeyType string `db:"receiver_pix_key_type"`

	ConfirmationCode *string `db:"confirmation_code"` // заполняется только на SUCCESS
	FailureReason    *string `db:"failure_reason"`

	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"` // ставится ровно один раз, при SUCCESS
	UpdatedAt   time.Time  `db:"updated_at"`
}

// FormatPaymentID(year, seq) – PAY-2025-000001
func FormatPaymentID(year int, seq int64) string {
	return fmt.Sprintf("PAY-%04d-%06d", year, seq)
}
