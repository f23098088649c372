package service

import (
	"context"
	"time"

	"payment_processing/internal/models"

	"github.com/google/uuid"
)

// Store – транзакционный доступ к платежам, очереди, аудиту и outbox.
// Реализуется repository.Store; в тестах подменяется in-memory фейком.
type Store interface {
	NextPaymentSeq(ctx context.Context) (int64, error)
	CreatePayment(ctx context.Context, p *models.Payment, audit *models.AuditLog, evt *models.OutboxMessage) error
	ClaimProcessing(ctx context.Context, id uuid.UUID, audit *models.AuditLog) error
	MarkSuccess(ctx context.Context, id uuid.UUID, from models.PaymentStatus, confirmationCode string, audit *models.AuditLog, evt *models.OutboxMessage) error
	ScheduleRetry(ctx context.Context, entry *models.QueueEntry, reason string, audit *models.AuditLog) error
	MarkFailed(ctx context.Context, id uuid.UUID, from models.PaymentStatus, reason string, audit *models.AuditLog, evt *models.OutboxMessage) error
	CancelPayment(ctx context.Context, id uuid.UUID, audit *models.AuditLog) error
	BumpRetry(ctx context.Context, entry *models.QueueEntry) error
	RecordAudit(ctx context.Context, a *models.AuditLog) error

	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetPaymentByPublicID(ctx context.Context, paymentID string) (*models.Payment, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key uuid.UUID) (*models.Payment, error)
	ListPayments(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int64, error)
	ListAudit(ctx context.Context, paymentID uuid.UUID) ([]*models.AuditLog, error)

	DueQueueEntries(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error)
	QueueEntry(ctx context.Context, paymentID uuid.UUID) (*models.QueueEntry, error)
	PendingQueueCount(ctx context.Context) (int64, error)
	StuckPayments(ctx context.Context, olderThan time.Time) ([]*models.Payment, error)
	SuccessfulBefore(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error)
}
