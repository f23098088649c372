package models

import "github.com/shopspring/decimal"

// PaymentRequest — входной запрос на перевод (HTTP body и Kafka payload
// используют одну и ту же структуру).
type PaymentRequest struct {
	Type     string          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Sender   Sender          `json:"sender"`
	Receiver Receiver        `json:"receiver"`
}

type Sender struct {
	Document string `json:"document"`
	BankCode string `json:"bank_code"`
	Account  string `json:"account"`
}

type Receiver struct {
	PixKey     string `json:"pix_key"`
	PixKeyType string `json:"pix_key_type"`
}
