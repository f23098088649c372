package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{name: "pending to processing", from: StatusPending, to: StatusProcessing, allowed: true},
		{name: "pending to cancelled", from: StatusPending, to: StatusCancelled, allowed: true},
		{name: "processing to success", from: StatusProcessing, to: StatusSuccess, allowed: true},
		{name: "processing back to pending", from: StatusProcessing, to: StatusPending, allowed: true},
		{name: "processing to failed", from: StatusProcessing, to: StatusFailed, allowed: true},

		{name: "pending to success skips processing", from: StatusPending, to: StatusSuccess, allowed: false},
		{name: "pending to failed skips processing", from: StatusPending, to: StatusFailed, allowed: false},
		{name: "processing to cancelled", from: StatusProcessing, to: StatusCancelled, allowed: false},
		{name: "success to pending", from: StatusSuccess, to: StatusPending, allowed: false},
		{name: "success to failed", from: StatusSuccess, to: StatusFailed, allowed: false},
		{name: "failed to pending", from: StatusFailed, to: StatusPending, allowed: false},
		{name: "cancelled to processing", from: StatusCancelled, to: StatusProcessing, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestFormatPaymentID(t *testing.T) {
	assert.Equal(t, "PAY-2025-000001", FormatPaymentID(2025, 1))
	assert.Equal(t, "PAY-2026-000042", FormatPaymentID(2026, 42))
	assert.Equal(t, "PAY-2025-123456", FormatPaymentID(2025, 123456))
	// последовательность переросла шесть разрядов — id просто длиннее
	assert.Equal(t, "PAY-2025-1000000", FormatPaymentID(2025, 1000000))
}

func TestQueueEntryBackoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := NewQueueEntry(uuid.New(), now)

	assert.Equal(t, 0, e.RetryCount)
	assert.Equal(t, DefaultMaxRetries, e.MaxRetries)
	assert.True(t, e.Due(now))

	e.IncrementRetry(now)
	assert.Equal(t, 1, e.RetryCount)
	assert.Equal(t, now.Add(2*time.Second), e.NextRetryAt)
	assert.True(t, e.CanRetry())
	assert.False(t, e.Due(now))
	assert.True(t, e.Due(now.Add(2*time.Second)))

	e.IncrementRetry(now)
	assert.Equal(t, 2, e.RetryCount)
	assert.Equal(t, now.Add(4*time.Second), e.NextRetryAt)
	assert.True(t, e.CanRetry())

	e.IncrementRetry(now)
	assert.Equal(t, 3, e.RetryCount)
	assert.Equal(t, now.Add(8*time.Second), e.NextRetryAt)
	assert.False(t, e.CanRetry())
	assert.False(t, e.Due(now.Add(time.Hour)))
}

func TestToResponse(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	code := "E00000000001202506011200000000001"
	p := &Payment{
		PaymentID:        "PAY-2025-000007",
		Status:           StatusSuccess,
		Currency:         "BRL",
		ConfirmationCode: &code,
		CreatedAt:        created,
	}

	resp := p.ToResponse()
	assert.Equal(t, "PAY-2025-000007", resp.PaymentID)
	assert.Equal(t, "SUCCESS", resp.Status)
	assert.Equal(t, &code, resp.ConfirmationCode)
	assert.Equal(t, created.Add(30*time.Second), resp.EstimatedCompletion)
	assert.Empty(t, resp.Timeline)
}
