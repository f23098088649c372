package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"payment_processing/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntake struct {
	calls []submittedRequest
	errs  []error
}

type submittedRequest struct {
	req *models.PaymentRequest
	key *uuid.UUID
}

func (f *fakeIntake) SubmitPayment(ctx context.Context, req *models.PaymentRequest, key *uuid.UUID) error {
	f.calls = append(f.calls, submittedRequest{req: req, key: key})
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type permanentTestError struct{ msg string }

func (e permanentTestError) Error() string   { return e.msg }
func (e permanentTestError) Permanent() bool { return true }

func newTestHandler(intake IntakeService) *paymentGroupHandler {
	return &paymentGroupHandler{intake: intake, logger: log.Default()}
}

func kafkaMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:     "payment_requests",
		Partition: 0,
		Offset:    42,
		Value:     []byte(value),
	}
}

func TestProcessOnceSubmits(t *testing.T) {
	intake := &fakeIntake{}
	h := newTestHandler(intake)

	key := uuid.New()
	body := fmt.Sprintf(`{
		"type": "PIX",
		"amount": 150.50,
		"sender": {"document": "12345678909", "bank_code": "341", "account": "12345-6"},
		"receiver": {"pix_key": "maria@example.com", "pix_key_type": "EMAIL"},
		"idempotency_key": %q
	}`, key)

	err := h.processOnce(context.Background(), kafkaMessage(body))
	require.NoError(t, err)

	require.Len(t, intake.calls, 1)
	got := intake.calls[0]
	assert.Equal(t, "PIX", got.req.Type)
	assert.Equal(t, "12345678909", got.req.Sender.Document)
	require.NotNil(t, got.key)
	assert.Equal(t, key, *got.key)
}

func TestProcessOnceWithoutIdempotencyKey(t *testing.T) {
	intake := &fakeIntake{}
	h := newTestHandler(intake)

	body := `{
		"type": "TED",
		"amount": 10,
		"sender": {"document": "12345678909", "bank_code": "341", "account": "12345-6"},
		"receiver": {"pix_key": "maria@example.com", "pix_key_type": "EMAIL"}
	}`

	require.NoError(t, h.processOnce(context.Background(), kafkaMessage(body)))
	require.Len(t, intake.calls, 1)
	assert.Nil(t, intake.calls[0].key)
}

func TestProcessWithRetrySkipsBrokenJSON(t *testing.T) {
	intake := &fakeIntake{}
	h := newTestHandler(intake)

	// не-JSON не держит партицию: nil без вызова сервиса
	err := h.processWithRetry(context.Background(), kafkaMessage("not json"))
	assert.NoError(t, err)
	assert.Empty(t, intake.calls)
}

func TestProcessWithRetrySkipsPermanentError(t *testing.T) {
	intake := &fakeIntake{errs: []error{permanentTestError{msg: "duplicate request"}}}
	h := newTestHandler(intake)

	err := h.processWithRetry(context.Background(), kafkaMessage(`{"type": "PIX"}`))
	assert.NoError(t, err)
	// один вызов, без повторов
	assert.Len(t, intake.calls, 1)
}

func TestProcessWithRetryRetriesTransient(t *testing.T) {
	intake := &fakeIntake{errs: []error{errors.New("db unavailable")}}
	h := newTestHandler(intake)

	err := h.processWithRetry(context.Background(), kafkaMessage(`{"type": "PIX"}`))
	require.NoError(t, err)
	// первая попытка упала, вторая после backoff прошла
	assert.Len(t, intake.calls, 2)
}

func TestProcessWithRetryStopsOnContextCancel(t *testing.T) {
	intake := &fakeIntake{errs: []error{errors.New("db unavailable"), errors.New("db unavailable")}}
	h := newTestHandler(intake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.processWithRetry(ctx, kafkaMessage(`{"type": "PIX"}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 1*time.Second, retryBackoff(1))
	assert.Equal(t, 5*time.Second, retryBackoff(5))
	assert.Equal(t, 30*time.Second, retryBackoff(30))
	assert.Equal(t, 30*time.Second, retryBackoff(100))
}

func TestUnmarshalErrorIsPermanent(t *testing.T) {
	e := unmarshalError{err: errors.New("bad payload")}

	var perm PermanentError
	require.ErrorAs(t, error(e), &perm)
	assert.True(t, perm.Permanent())
}
