package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"payment_processing/internal/bank"
	"payment_processing/internal/models"
	"payment_processing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBank — сценарный банк: поведение задаётся функциями.
type stubBank struct {
	processFn func(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*bank.Result, error)
	queryFn   func(ctx context.Context, confirmationCode string) (*bank.StatusResult, error)
	calls     int
}

func (b *stubBank) ProcessPayment(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*bank.Result, error) {
	b.calls++
	return b.processFn(ctx, paymentID, amount, pixKey)
}

func (b *stubBank) QueryStatus(ctx context.Context, confirmationCode string) (*bank.StatusResult, error) {
	return b.queryFn(ctx, confirmationCode)
}

func approvingBank(code string) *stubBank {
	return &stubBank{
		processFn: func(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*bank.Result, error) {
			return &bank.Result{Success: true, ConfirmationCode: code, Message: "Payment processed successfully"}, nil
		},
	}
}

func rejectingBank(errMsg string) *stubBank {
	return &stubBank{
		processFn: func(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*bank.Result, error) {
			return &bank.Result{Success: false, ErrorMessage: errMsg}, nil
		},
	}
}

func newPendingPayment(t *testing.T, store *memStore) *models.Payment {
	t.Helper()
	svc := NewPaymentService(store, "payment_events", nil)
	resp, err := svc.CreatePayment(context.Background(), validRequest(), nil)
	require.NoError(t, err)
	p, err := store.GetPaymentByPublicID(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	return p
}

func TestProcessDueSuccess(t *testing.T) {
	store := newMemStore()
	p := newPendingPayment(t, store)

	proc := NewProcessingService(store, approvingBank("E123"), "payment_events", time.Second, 100, nil)
	proc.ProcessDue(context.Background())

	got, err := store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	require.NotNil(t, got.ConfirmationCode)
	assert.Equal(t, "E123", *got.ConfirmationCode)
	assert.NotNil(t, got.ProcessedAt)

	// обработанный платёж уходит из очереди
	_, err = store.QueueEntry(context.Background(), p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	audits := store.auditsFor(p.ID)
	require.Len(t, audits, 3) // CREATED, переход в PROCESSING, переход в SUCCESS
	last := audits[len(audits)-1]
	assert.Equal(t, models.EventStatusChanged, last.EventType)
	assert.Equal(t, models.StatusProcessing, *last.OldStatus)
	assert.Equal(t, models.StatusSuccess, *last.NewStatus)
	assert.Equal(t, "E123", last.Metadata["confirmation_code"])

	// событие payment.succeeded добавилось к payment.created
	require.Len(t, store.outbox, 2)
}

func TestProcessDueSchedulesRetry(t *testing.T) {
	store := newMemStore()
	p := newPendingPayment(t, store)

	before := time.Now()
	proc := NewProcessingService(store, rejectingBank("Insufficient funds"), "payment_events", time.Second, 100, nil)
	proc.ProcessDue(context.Background())

	got, err := store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "Retry 1/3: Insufficient funds", *got.FailureReason)

	entry, err := store.QueueEntry(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.RetryCount)
	// первый backoff — две секунды
	assert.True(t, entry.NextRetryAt.After(before.Add(2*time.Second-time.Millisecond)))
	assert.True(t, entry.NextRetryAt.Before(before.Add(3*time.Second)))

	audits := store.auditsFor(p.ID)
	last := audits[len(audits)-1]
	assert.Equal(t, models.EventRetryAttempted, last.EventType)
	assert.Equal(t, models.StatusPending, *last.NewStatus)
	assert.Equal(t, 1, last.Metadata["retry_count"])
	assert.Equal(t, "Insufficient funds", last.Metadata["error"])
}

func TestProcessDueRespectsBackoff(t *testing.T) {
	store := newMemStore()
	p := newPendingPayment(t, store)

	b := rejectingBank("Insufficient funds")
	proc := NewProcessingService(store, b, "payment_events", time.Second, 100, nil)

	proc.ProcessDue(context.Background())
	require.Equal(t, 1, b.calls)

	// платёж снова PENDING, но next_retry_at в будущем — второй проход молчит
	proc.ProcessDue(context.Background())
	assert.Equal(t, 1, b.calls)

	got, err := store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestProcessDueExhaustsRetries(t *testing.T) {
	store := newMemStore()
	p := newPendingPayment(t, store)

	proc := NewProcessingService(store, rejectingBank("Account blocked"), "payment_events", time.Second, 100, nil)

	for i := 0; i < models.DefaultMaxRetries; i++ {
		proc.ProcessDue(context.Background())
		// откручиваем backoff, чтобы запись снова была готова
		if entry, err := store.QueueEntry(context.Background(), p.ID); err == nil {
			entry.NextRetryAt = time.Now().Add(-time.Second)
			require.NoError(t, store.BumpRetry(context.Background(), entry))
		}
	}

	got, err := store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "Max retries exceeded: Account blocked", *got.FailureReason)

	_, err = store.QueueEntry(context.Background(), p.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	audits := store.auditsFor(p.ID)
	last := audits[len(audits)-1]
	assert.Equal(t, models.EventFailed, last.EventType)
	assert.Equal(t, models.StatusFailed, *last.NewStatus)

	// payment.created + payment.failed
	require.Len(t, store.outbox, 2)
	assert.Contains(t, string(store.outbox[1].Payload), "payment.failed")
}

func TestProcessDueSkipsClaimed(t *testing.T) {
	store := newMemStore()
	p := newPendingPayment(t, store)

	// кто-то уже захватил платёж
	require.NoError(t, store.ClaimProcessing(context.Background(), p.ID,
		models.NewAuditLog(p.ID, models.EventStatusChanged,
			models.StatusPtr(models.StatusPending), models.StatusPtr(models.StatusProcessing), nil)))

	b := approvingBank("E999")
	proc := NewProcessingService(store, b, "payment_events", time.Second, 100, nil)
	proc.ProcessDue(context.Background())

	// до банка дело не дошло
	assert.Equal(t, 0, b.calls)

	got, err := store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
}

func TestProcessDueBankFault(t *testing.T) {
	store := newMemStore()
	p := newPendingPayment(t, store)

	faulty := &stubBank{
		processFn: func(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*bank.Result, error) {
			return nil, errors.New("connection refused")
		},
	}
	proc := NewProcessingService(store, faulty, "payment_events", time.Second, 100, nil)
	proc.ProcessDue(context.Background())

	// платёж остаётся в PROCESSING — его подберёт реконсиляция
	got, err := store.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)

	// очередь сдвинулась, чтобы не молотить недоступный банк
	entry, err := store.QueueEntry(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.LastError)
	assert.Contains(t, *entry.LastError, "connection refused")
}

func TestProcessDueFaultIsolation(t *testing.T) {
	store := newMemStore()
	bad := newPendingPayment(t, store)
	good := newPendingPayment(t, store)

	b := &stubBank{
		processFn: func(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, pixKey string) (*bank.Result, error) {
			if paymentID == bad.ID {
				return nil, fmt.Errorf("connection refused")
			}
			return &bank.Result{Success: true, ConfirmationCode: "E777"}, nil
		},
	}
	proc := NewProcessingService(store, b, "payment_events", time.Second, 100, nil)
	proc.ProcessDue(context.Background())

	// сбой первого платежа не мешает второму
	gotGood, err := store.GetPayment(context.Background(), good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, gotGood.Status)

	gotBad, err := store.GetPayment(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, gotBad.Status)
}
