package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"payment_processing/internal/bank"
	"payment_processing/internal/kafka"
	"payment_processing/internal/metrics"
	"payment_processing/internal/models"
	"payment_processing/internal/repository"
)

// ProcessingService разбирает очередь повторов: захватывает платёж,
// ходит в банк и применяет переход статуса.
type ProcessingService struct {
	store       Store
	bank        bank.Client
	eventsTopic string
	interval    time.Duration
	batchSize   int
	logger      *log.Logger
}

func NewProcessingService(
	store Store,
	bankClient bank.Client,
	eventsTopic string,
	interval time.Duration,
	batchSize int,
	logger *log.Logger,
) *ProcessingService {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if strings.TrimSpace(eventsTopic) == "" {
		eventsTopic = "payment_events"
	}

	return &ProcessingService{
		store:       store,
		bank:        bankClient,
		eventsTopic: eventsTopic,
		interval:    interval,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Start запускает фоновую горутину.
func (s *ProcessingService) Start(ctx context.Context) {
	go func() {
		s.logger.Println("processing worker started")
		defer s.logger.Println("processing worker stopped")

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		statsTicker := time.NewTicker(1 * time.Minute)
		defer statsTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ProcessDue(ctx)
			case <-statsTicker.C:
				s.logQueueStatistics(ctx)
			}
		}
	}()
}

func (s *ProcessingService) logQueueStatistics(ctx context.Context) {
	pending, err := s.store.PendingQueueCount(ctx)
	if err != nil {
		s.logger.Printf("queue statistics: %v", err)
		return
	}
	s.logger.Printf("queue statistics: pendingItems=%d", pending)
	if pending > 1000 {
		s.logger.Printf("high queue size detected: %d items pending", pending)
	}
}

// ProcessDue – один проход по готовым к обработке записям очереди.
// Ошибка одного платежа не прерывает остальные.
func (s *ProcessingService) ProcessDue(ctx context.Context) {
	entries, err := s.store.DueQueueEntries(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.Printf("fetch due queue entries: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	s.logger.Printf("found %d payments ready for processing", len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if err := s.processOne(ctx, entry); err != nil {
			s.logger.Printf("process payment %s: %v", entry.PaymentID, err)
		}
	}
}

func (s *ProcessingService) processOne(ctx context.Context, entry *models.QueueEntry) error {
	p, err := s.store.GetPayment(ctx, entry.PaymentID)
	if err != nil {
		// запись очереди без платежа — consistency fault, не рушим батч
		return fmt.Errorf("load payment: %w", err)
	}

	// захват: CAS PENDING→PROCESSING отсекает параллельный проход
	claimAudit := models.NewAuditLog(p.ID, models.EventStatusChanged,
		models.StatusPtr(models.StatusPending), models.StatusPtr(models.StatusProcessing), nil)
	if err := s.store.ClaimProcessing(ctx, p.ID, claimAudit); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Printf("payment %s not claimable, status=%s, skipping", p.PaymentID, p.Status)
			return nil
		}
		return fmt.Errorf("claim payment: %w", err)
	}

	start := time.Now()
	res, bankErr := s.bank.ProcessPayment(ctx, p.ID, p.Amount, p.ReceiverPixKey)
	metrics.ObserveBankCall(time.Since(start))

	if bankErr != nil {
		// банк упал, не отказал: платёж остаётся в PROCESSING, двигаем
		// только очередь — дальше его подберёт либо очередь, либо сверка
		s.bumpAfterFault(ctx, entry, bankErr)
		return fmt.Errorf("bank call: %w", bankErr)
	}

	if res.Success {
		return s.settle(ctx, p, entry, res)
	}
	return s.retryOrFail(ctx, p, entry, res.ErrorMessage)
}

func (s *ProcessingService) settle(ctx context.Context, p *models.Payment, entry *models.QueueEntry, res *bank.Result) error {
	audit := models.NewAuditLog(p.ID, models.EventStatusChanged,
		models.StatusPtr(models.StatusProcessing), models.StatusPtr(models.StatusSuccess), map[string]any{
			"confirmation_code": res.ConfirmationCode,
			"message":           res.Message,
		})

	p.Status = models.StatusSuccess
	evt, err := s.outboxEvent(kafka.EventPaymentSucceeded, p)
	if err != nil {
		return err
	}

	if err := s.store.MarkSuccess(ctx, p.ID, models.StatusProcessing, res.ConfirmationCode, audit, evt); err != nil {
		return fmt.Errorf("mark success: %w", err)
	}

	metrics.IncPaymentsSucceeded()
	s.logger.Printf("payment processed successfully: paymentId=%s confirmationCode=%s", p.PaymentID, res.ConfirmationCode)
	return nil
}

func (s *ProcessingService) retryOrFail(ctx context.Context, p *models.Payment, entry *models.QueueEntry, bankError string) error {
	entry.IncrementRetry(time.Now())
	entry.LastError = &bankError

	if entry.CanRetry() {
		reason := fmt.Sprintf("Retry %d/%d: %s", entry.RetryCount, entry.MaxRetries, bankError)
		audit := models.NewAuditLog(p.ID, models.EventRetryAttempted,
			models.StatusPtr(models.StatusProcessing), models.StatusPtr(models.StatusPending), map[string]any{
				"retry_count":   entry.RetryCount,
				"next_retry_at": entry.NextRetryAt.Format(time.RFC3339),
				"error":         bankError,
			})

		if err := s.store.ScheduleRetry(ctx, entry, reason, audit); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}

		metrics.IncPaymentRetries()
		s.logger.Printf("payment failed, will retry: paymentId=%s retryCount=%d error=%s", p.PaymentID, entry.RetryCount, bankError)
		return nil
	}

	reason := "Max retries exceeded: " + bankError
	audit := models.NewAuditLog(p.ID, models.EventFailed,
		models.StatusPtr(models.StatusProcessing), models.StatusPtr(models.StatusFailed), map[string]any{
			"retry_count": entry.RetryCount,
			"error":       bankError,
		})

	p.Status = models.StatusFailed
	evt, err := s.outboxEvent(kafka.EventPaymentFailed, p)
	if err != nil {
		return err
	}

	if err := s.store.MarkFailed(ctx, p.ID, models.StatusProcessing, reason, audit, evt); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	metrics.IncPaymentsFailed()
	s.logger.Printf("payment failed permanently: paymentId=%s error=%s", p.PaymentID, bankError)
	return nil
}

func (s *ProcessingService) bumpAfterFault(ctx context.Context, entry *models.QueueEntry, cause error) {
	entry.IncrementRetry(time.Now())
	msg := cause.Error()
	entry.LastError = &msg
	if err := s.store.BumpRetry(ctx, entry); err != nil {
		s.logger.Printf("bump retry for %s: %v", entry.PaymentID, err)
	}
}

func (s *ProcessingService) outboxEvent(eventType string, p *models.Payment) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(kafka.NewPaymentEvent(eventType, p))
	if err != nil {
		return nil, fmt.Errorf("marshal payment event: %w", err)
	}
	return &models.OutboxMessage{Topic: s.eventsTopic, Payload: payload}, nil
}
