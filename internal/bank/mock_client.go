package bank

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var mockErrorMessages = []string{
	"Insufficient funds",
	"Invalid PIX key",
	"Bank system temporarily unavailable",
	"Daily limit exceeded",
	"Account blocked",
	"Timeout communicating with bank",
}

// MockClient имитирует банковскую сеть: случайная задержка, настраиваемая
// доля успешных ответов, правдоподобные коды подтверждения.
type MockClient struct {
	successRate      float64
	querySuccessRate float64
	rng              *rand.Rand
	logger           *log.Logger

	// задержки обнуляются в тестах
	minProcessDelay time.Duration
	maxProcessDelay time.Duration
	minQueryDelay   time.Duration
	maxQueryDelay   time.Duration
}

func NewMockClient(successRate float64, logger *log.Logger) *MockClient {
	if successRate < 0 || successRate > 1 {
		successRate = 0.85
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MockClient{
		successRate:      successRate,
		querySuccessRate: 0.95,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:           logger,
		minProcessDelay:  500 * time.Millisecond,
		maxProcessDelay:  1500 * time.Millisecond,
		minQueryDelay:    100 * time.Millisecond,
		maxQueryDelay:    400 * time.Millisecond,
	}
}

func (c *MockClient) ProcessPayment(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*Result, error) {
	c.logger.Printf("[BANK] processing payment %s amount=%s pixKey=%s", paymentID, amount.StringFixed(2), maskPixKey(pixKey))

	if err := c.sleep(ctx, c.minProcessDelay, c.maxProcessDelay); err != nil {
		return nil, err
	}

	if c.rng.Float64() < c.successRate {
		code := c.generateConfirmationCode()
		c.logger.Printf("[BANK] payment %s approved, confirmation=%s", paymentID, code)
		return &Result{
			Success:          true,
			ConfirmationCode: code,
			Message:          "Payment processed successfully",
		}, nil
	}

	errMsg := mockErrorMessages[c.rng.Intn(len(mockErrorMessages))]
	c.logger.Printf("[BANK] payment %s rejected: %s", paymentID, errMsg)
	return &Result{
		Success:      false,
		ErrorMessage: errMsg,
	}, nil
}

func (c *MockClient) QueryStatus(ctx context.Context, confirmationCode string) (*StatusResult, error) {
	if err := c.sleep(ctx, c.minQueryDelay, c.maxQueryDelay); err != nil {
		return nil, err
	}

	if c.rng.Float64() < c.querySuccessRate {
		return &StatusResult{
			Success:          true,
			Status:           QueryStatusSuccess,
			ConfirmationCode: confirmationCode,
			Message:          "Payment confirmed",
		}, nil
	}

	return &StatusResult{
		Success:          false,
		Status:           QueryStatusError,
		ConfirmationCode: confirmationCode,
		Message:          "Payment not found in bank records",
	}, nil
}

func (c *MockClient) sleep(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(c.rng.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// формат кода подтверждения: E + 11 цифр + yyyyMMddHHmm + 9 цифр
func (c *MockClient) generateConfirmationCode() string {
	return fmt.Sprintf("E%011d%s%09d",
		c.rng.Int63n(100_000_000_000),
		time.Now().Format("200601021504"),
		c.rng.Int63n(1_000_000_000),
	)
}

func maskPixKey(pixKey string) string {
	if len(pixKey) <= 4 {
		return "****"
	}
	return pixKey[:2] + "****" + pixKey[len(pixKey)-2:]
}
