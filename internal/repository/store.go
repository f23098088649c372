package repository

import (
	"context"
	"fmt"
	"time"

	"payment_processing/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store объединяет репозитории и выполняет связанные изменения
// (платёж + очередь + аудит + outbox) в одной транзакции.
type Store struct {
	pool     *pgxpool.Pool
	Payments *PaymentRepository
	Queue    *QueueRepository
	Audit    *AuditRepository
	Outbox   *OutboxRepository
}

func NewStore(pool *pgxpool.Pool, outboxMaxRetries int) *Store {
	return &Store{
		pool:     pool,
		Payments: NewPaymentRepository(pool),
		Queue:    NewQueueRepository(pool),
		Audit:    NewAuditRepository(pool),
		Outbox:   NewOutboxRepository(pool, outboxMaxRetries),
	}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// NextPaymentSeq – следующий номер для публичного id. Берётся отдельным
// nextval до основной транзакции: sequence всё равно не откатывается,
// пропуски в нумерации допустимы.
func (s *Store) NextPaymentSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, "SELECT nextval('payment_public_id_seq')").Scan(&seq); err != nil {
		return 0, fmt.Errorf("next payment seq: %w", err)
	}
	return seq, nil
}

// CreatePayment – платёж, запись очереди, аудит CREATED и outbox-событие
// одной транзакцией. Повтор idempotency key возвращает ErrDuplicate.
func (s *Store) CreatePayment(ctx context.Context, p *models.Payment, audit *models.AuditLog, evt *models.OutboxMessage) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.Payments.CreateTx(ctx, tx, p); err != nil {
			return err
		}

		entry := models.NewQueueEntry(p.ID, p.CreatedAt)
		if err := s.Queue.CreateTx(ctx, tx, entry); err != nil {
			return err
		}

		audit.PaymentID = p.ID
		if err := s.Audit.CreateTx(ctx, tx, audit); err != nil {
			return err
		}

		if evt != nil {
			if err := s.Outbox.CreateMessageTx(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimProcessing – захват платежа воркером: CAS PENDING→PROCESSING плюс
// аудит. ErrStatusConflict означает, что платёж забрал кто-то другой.
func (s *Store) ClaimProcessing(ctx context.Context, id uuid.UUID, audit *models.AuditLog) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.Payments.MarkProcessingTx(ctx, tx, id); err != nil {
			return err
		}
		return s.Audit.CreateTx(ctx, tx, audit)
	})
}

// MarkSuccess – перевод в SUCCESS, удаление из очереди, аудит и событие.
func (s *Store) MarkSuccess(ctx context.Context, id uuid.UUID, from models.PaymentStatus, confirmationCode string, audit *models.AuditLog, evt *models.OutboxMessage) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.Payments.MarkSuccessTx(ctx, tx, id, from, confirmationCode); err != nil {
			return err
		}
		if err := s.Queue.DeleteByPaymentIDTx(ctx, tx, id); err != nil {
			return err
		}
		if err := s.Audit.CreateTx(ctx, tx, audit); err != nil {
			return err
		}
		if evt != nil {
			return s.Outbox.CreateMessageTx(ctx, tx, evt)
		}
		return nil
	})
}

// ScheduleRetry – неудачная попытка с оставшимся лимитом: инкремент
// retry_count в очереди, возврат платежа в PENDING и аудит RETRY_ATTEMPTED.
func (s *Store) ScheduleRetry(ctx context.Context, entry *models.QueueEntry, reason string, audit *models.AuditLog) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.Queue.UpdateRetryTx(ctx, tx, entry); err != nil {
			return err
		}
		if err := s.Payments.MarkPendingRetryTx(ctx, tx, entry.PaymentID, reason); err != nil {
			return err
		}
		return s.Audit.CreateTx(ctx, tx, audit)
	})
}

// MarkFailed – терминальный отказ: FAILED, очистка очереди, аудит, событие.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, from models.PaymentStatus, reason string, audit *models.AuditLog, evt *models.OutboxMessage) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.Payments.MarkFailedTx(ctx, tx, id, from, reason); err != nil {
			return err
		}
		if err := s.Queue.DeleteByPaymentIDTx(ctx, tx, id); err != nil {
			return err
		}
		if err := s.Audit.CreateTx(ctx, tx, audit); err != nil {
			return err
		}
		if evt != nil {
			return s.Outbox.CreateMessageTx(ctx, tx, evt)
		}
		return nil
	})
}

// CancelPayment – отмена допустима только из PENDING.
func (s *Store) CancelPayment(ctx context.Context, id uuid.UUID, audit *models.AuditLog) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := s.Payments.MarkCancelledTx(ctx, tx, id); err != nil {
			return err
		}
		if err := s.Queue.DeleteByPaymentIDTx(ctx, tx, id); err != nil {
			return err
		}
		return s.Audit.CreateTx(ctx, tx, audit)
	})
}

// BumpRetry – сдвиг next_retry_at без смены статуса платежа. Используется,
// когда обращение к банку упало с ошибкой, а платёж остался в PROCESSING.
func (s *Store) BumpRetry(ctx context.Context, entry *models.QueueEntry) error {
	return s.Queue.UpdateRetry(ctx, entry)
}

// RecordAudit – одиночная аудит-запись вне транзакции (detection-only
// сценарии сверки).
func (s *Store) RecordAudit(ctx context.Context, a *models.AuditLog) error {
	return s.Audit.Create(ctx, a)
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.Payments.GetByID(ctx, id)
}

func (s *Store) GetPaymentByPublicID(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.Payments.GetByPublicID(ctx, paymentID)
}

func (s *Store) GetPaymentByIdempotencyKey(ctx context.Context, key uuid.UUID) (*models.Payment, error) {
	return s.Payments.GetByIdempotencyKey(ctx, key)
}

func (s *Store) ListPayments(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int64, error) {
	return s.Payments.List(ctx, status, limit, offset)
}

func (s *Store) ListAudit(ctx context.Context, paymentID uuid.UUID) ([]*models.AuditLog, error) {
	return s.Audit.ListByPaymentID(ctx, paymentID)
}

func (s *Store) DueQueueEntries(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	return s.Queue.Due(ctx, now, limit)
}

func (s *Store) QueueEntry(ctx context.Context, paymentID uuid.UUID) (*models.QueueEntry, error) {
	return s.Queue.GetByPaymentID(ctx, paymentID)
}

func (s *Store) StuckPayments(ctx context.Context, olderThan time.Time) ([]*models.Payment, error) {
	return s.Payments.Stuck(ctx, olderThan)
}

func (s *Store) SuccessfulBefore(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error) {
	return s.Payments.ByStatusUpdatedBefore(ctx, models.StatusSuccess, olderThan, limit)
}

func (s *Store) PaymentCountsByStatus(ctx context.Context) (map[models.PaymentStatus]int64, error) {
	return s.Payments.CountByStatus(ctx)
}

func (s *Store) PendingQueueCount(ctx context.Context) (int64, error) {
	return s.Queue.CountPending(ctx)
}
