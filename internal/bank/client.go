package bank

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статусы ответа банка на запрос о судьбе платежа.
const (
	QueryStatusSuccess = "SUCCESS"
	QueryStatusFailed  = "FAILED"
	QueryStatusError   = "ERROR"
)

// Result – ответ банка на проведение платежа.
type Result struct {
	Success          bool
	ConfirmationCode string
	Message          string
	ErrorMessage     string
}

// StatusResult – ответ банка на запрос статуса по коду подтверждения.
type StatusResult struct {
	Success          bool
	Status           string
	ConfirmationCode string
	Message          string
}

// Client – интеграция с банковской сетью. Боевой клиент ходит по
// банковскому API, в тестах и локально используется MockClient.
type Client interface {
	ProcessPayment(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*Result, error)
	QueryStatus(ctx context.Context, confirmationCode string) (*StatusResult, error)
}
