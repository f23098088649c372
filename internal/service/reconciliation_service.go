package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"payment_processing/internal/bank"
	"payment_processing/internal/metrics"
	"payment_processing/internal/models"
	"payment_processing/internal/repository"
)

const (
	reasonBankReconciliation = "Bank reconciliation: payment not found or failed"
	reasonProcessingTimeout  = "Processing timeout - no confirmation received"

	verifySampleSize = 10
)

// ReconciliationService чинит зависшие платежи и перепроверяет успешные.
// Два независимых скана с разными интервалами в одной горутине.
type ReconciliationService struct {
	store Store
	bank  bank.Client

	stuckInterval  time.Duration
	verifyInterval time.Duration
	stuckAfter     time.Duration
	verifyAfter    time.Duration

	logger *log.Logger
}

func NewReconciliationService(
	store Store,
	bankClient bank.Client,
	stuckInterval, verifyInterval time.Duration,
	stuckAfter, verifyAfter time.Duration,
	logger *log.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = log.Default()
	}
	if stuckInterval <= 0 {
		stuckInterval = 30 * time.Second
	}
	if verifyInterval <= 0 {
		verifyInterval = 2 * time.Minute
	}
	if stuckAfter <= 0 {
		stuckAfter = 5 * time.Minute
	}
	if verifyAfter <= 0 {
		verifyAfter = 10 * time.Minute
	}

	return &ReconciliationService{
		store:          store,
		bank:           bankClient,
		stuckInterval:  stuckInterval,
		verifyInterval: verifyInterval,
		stuckAfter:     stuckAfter,
		verifyAfter:    verifyAfter,
		logger:         logger,
	}
}

// Start запускает фоновую горутину.
func (s *ReconciliationService) Start(ctx context.Context) {
	go func() {
		s.logger.Println("reconciliation worker started")
		defer s.logger.Println("reconciliation worker stopped")

		stuckTicker := time.NewTicker(s.stuckInterval)
		defer stuckTicker.Stop()

		verifyTicker := time.NewTicker(s.verifyInterval)
		defer verifyTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stuckTicker.C:
				s.ReconcileStuck(ctx)
			case <-verifyTicker.C:
				s.VerifySuccessful(ctx)
			}
		}
	}()
}

// ReconcileStuck – платежи, висящие в PROCESSING дольше порога. Ошибка по
// одному платежу не останавливает скан.
func (s *ReconciliationService) ReconcileStuck(ctx context.Context) {
	stuck, err := s.store.StuckPayments(ctx, time.Now().Add(-s.stuckAfter))
	if err != nil {
		s.logger.Printf("fetch stuck payments: %v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	s.logger.Printf("found %d stuck payments", len(stuck))
	for _, p := range stuck {
		if ctx.Err() != nil {
			return
		}
		if err := s.reconcileOne(ctx, p); err != nil {
			s.logger.Printf("reconcile payment %s: %v", p.PaymentID, err)
		}
	}
}

func (s *ReconciliationService) reconcileOne(ctx context.Context, p *models.Payment) error {
	// без кода подтверждения спрашивать банк не о чем
	if p.ConfirmationCode == nil || *p.ConfirmationCode == "" {
		return s.failStuck(ctx, p, reasonProcessingTimeout, map[string]any{
			"reason": "no confirmation code recorded",
		})
	}

	res, err := s.bank.QueryStatus(ctx, *p.ConfirmationCode)
	if err != nil {
		// банк недоступен — платёж останется на следующий скан
		return fmt.Errorf("query bank status: %w", err)
	}

	if res.Success && res.Status == bank.QueryStatusSuccess {
		audit := models.NewAuditLog(p.ID, models.EventReconciled,
			models.StatusPtr(models.StatusProcessing), models.StatusPtr(models.StatusSuccess), map[string]any{
				"confirmation_code": *p.ConfirmationCode,
				"bank_status":       res.Status,
			})

		err := s.store.MarkSuccess(ctx, p.ID, models.StatusProcessing, *p.ConfirmationCode, audit, nil)
		if errors.Is(err, repository.ErrStatusConflict) {
			// платёж успели обработать между сканом и правкой
			return nil
		}
		if err != nil {
			return fmt.Errorf("reconcile to success: %w", err)
		}

		metrics.IncPaymentsReconciled()
		metrics.IncReconInconsistencies()
		s.logger.Printf("stuck payment reconciled to SUCCESS: paymentId=%s", p.PaymentID)
		return nil
	}

	return s.failStuck(ctx, p, reasonBankReconciliation, map[string]any{
		"confirmation_code": *p.ConfirmationCode,
		"bank_status":       res.Status,
	})
}

func (s *ReconciliationService) failStuck(ctx context.Context, p *models.Payment, reason string, metadata map[string]any) error {
	audit := models.NewAuditLog(p.ID, models.EventReconciled,
		models.StatusPtr(models.StatusProcessing), models.StatusPtr(models.StatusFailed), metadata)

	err := s.store.MarkFailed(ctx, p.ID, models.StatusProcessing, reason, audit, nil)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile to failed: %w", err)
	}

	metrics.IncPaymentsReconciled()
	metrics.IncReconInconsistencies()
	s.logger.Printf("stuck payment reconciled to FAILED: paymentId=%s reason=%s", p.PaymentID, reason)
	return nil
}

// VerifySuccessful – выборочная сверка успешных платежей с банком.
// Расхождение фиксируется в аудите, статус не трогаем: откат проведённого
// платежа — ручная операция.
func (s *ReconciliationService) VerifySuccessful(ctx context.Context) {
	sample, err := s.store.SuccessfulBefore(ctx, time.Now().Add(-s.verifyAfter), verifySampleSize)
	if err != nil {
		s.logger.Printf("fetch successful payments: %v", err)
		return
	}

	for _, p := range sample {
		if ctx.Err() != nil {
			return
		}
		if err := s.verifyOne(ctx, p); err != nil {
			s.logger.Printf("verify payment %s: %v", p.PaymentID, err)
		}
	}
}

func (s *ReconciliationService) verifyOne(ctx context.Context, p *models.Payment) error {
	if p.ConfirmationCode == nil || *p.ConfirmationCode == "" {
		// SUCCESS без кода подтверждения — само по себе расхождение
		return s.flagInconsistency(ctx, p, "missing")
	}

	res, err := s.bank.QueryStatus(ctx, *p.ConfirmationCode)
	if err != nil {
		return fmt.Errorf("query bank status: %w", err)
	}

	if res.Success && res.Status == bank.QueryStatusSuccess {
		return nil
	}
	return s.flagInconsistency(ctx, p, res.Status)
}

func (s *ReconciliationService) flagInconsistency(ctx context.Context, p *models.Payment, bankStatus string) error {
	// old == new: запись только фиксирует факт, перехода нет
	audit := models.NewAuditLog(p.ID, models.EventReconciled,
		models.StatusPtr(models.StatusSuccess), models.StatusPtr(models.StatusSuccess), map[string]any{
			"recorded_status": string(models.StatusSuccess),
			"bank_status":     bankStatus,
		})

	if err := s.store.RecordAudit(ctx, audit); err != nil {
		return fmt.Errorf("record inconsistency: %w", err)
	}

	metrics.IncReconInconsistencies()
	s.logger.Printf("success verification mismatch: paymentId=%s bankStatus=%s", p.PaymentID, bankStatus)
	return nil
}
