package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"payment_processing/internal/kafka"
	"payment_processing/internal/metrics"
	"payment_processing/internal/models"
	"payment_processing/internal/repository"
	"payment_processing/internal/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(10000)

type PaymentService struct {
	store       Store
	eventsTopic string
	logger      *log.Logger
}

func NewPaymentService(store Store, eventsTopic string, logger *log.Logger) *PaymentService {
	if logger == nil {
		logger = log.Default()
	}
	if strings.TrimSpace(eventsTopic) == "" {
		eventsTopic = "payment_events"
	}
	return &PaymentService{
		store:       store,
		eventsTopic: eventsTopic,
		logger:      logger,
	}
}

// CreatePayment – идемпотентный приём заявки. Повтор idempotency key
// возвращает DuplicateRequestError с публичным id существующего платежа.
func (s *PaymentService) CreatePayment(ctx context.Context, req *models.PaymentRequest, idempotencyKey *uuid.UUID) (*models.PaymentResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// предварительная проверка ключа; гонку ловит уникальный индекс ниже
	if idempotencyKey != nil {
		existing, err := s.store.GetPaymentByIdempotencyKey(ctx, *idempotencyKey)
		switch {
		case err == nil:
			return nil, &DuplicateRequestError{ExistingPaymentID: existing.PaymentID}
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	seq, err := s.store.NextPaymentSeq(ctx)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "BRL"
	}

	p := &models.Payment{
		ID:                 uuid.New(),
		PaymentID:          models.FormatPaymentID(time.Now().UTC().Year(), seq),
		IdempotencyKey:     idempotencyKey,
		Type:               models.PaymentType(strings.ToUpper(req.Type)),
		Amount:             req.Amount,
		Currency:           currency,
		Status:             models.StatusPending,
		SenderDocument:     validator.DigitsOnly(req.Sender.Document),
		SenderBankCode:     strings.TrimSpace(req.Sender.BankCode),
		SenderAccount:      strings.TrimSpace(req.Sender.Account),
		ReceiverPixKey:     strings.TrimSpace(req.Receiver.PixKey),
		ReceiverPixKeyType: strings.ToUpper(strings.TrimSpace(req.Receiver.PixKeyType)),
	}

	audit := models.NewAuditLog(p.ID, models.EventCreated, nil, models.StatusPtr(models.StatusPending), map[string]any{
		"amount": p.Amount.StringFixed(2),
		"type":   string(p.Type),
	})

	evt, err := s.outboxEvent(kafka.EventPaymentCreated, p)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreatePayment(ctx, p, audit, evt); err != nil {
		// конкурирующий повтор того же ключа
		if errors.Is(err, repository.ErrDuplicate) && idempotencyKey != nil {
			existing, lookupErr := s.store.GetPaymentByIdempotencyKey(ctx, *idempotencyKey)
			if lookupErr == nil {
				return nil, &DuplicateRequestError{ExistingPaymentID: existing.PaymentID}
			}
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	metrics.IncPaymentsCreated(string(p.Type))
	metrics.ObservePaymentAmount(string(p.Type), p.Amount.InexactFloat64())
	s.logger.Printf("payment created: paymentId=%s type=%s amount=%s", p.PaymentID, p.Type, p.Amount.StringFixed(2))

	return p.ToResponse(), nil
}

// SubmitPayment – kafka.IntakeService.
func (s *PaymentService) SubmitPayment(ctx context.Context, req *models.PaymentRequest, idempotencyKey *uuid.UUID) error {
	_, err := s.CreatePayment(ctx, req, idempotencyKey)
	return err
}

// GetPayment – платёж по публичному id вместе с таймлайном из аудита.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*models.PaymentResponse, error) {
	p, err := s.store.GetPaymentByPublicID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.ListAudit(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}

	resp := p.ToResponse()
	resp.Timeline = buildTimeline(entries)
	return resp, nil
}

// ListPayments – страница платежей, опционально по статусу.
func (s *PaymentService) ListPayments(ctx context.Context, status string, page, size int) (*models.PageResponse, error) {
	var st models.PaymentStatus
	if strings.TrimSpace(status) != "" {
		st = models.PaymentStatus(strings.ToUpper(status))
		if !models.ValidStatus(st) {
			return nil, &ValidationError{Fields: map[string]string{
				"status": "must be one of PENDING, PROCESSING, SUCCESS, FAILED, CANCELLED",
			}}
		}
	}

	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	items, total, err := s.store.ListPayments(ctx, st, size, page*size)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	content := make([]*models.PaymentResponse, 0, len(items))
	for _, p := range items {
		content = append(content, p.ToResponse())
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &models.PageResponse{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         page == 0,
		Last:          page >= totalPages-1,
	}, nil
}

// CancelPayment – административная отмена; допустима только пока платёж
// не ушёл в обработку.
func (s *PaymentService) CancelPayment(ctx context.Context, paymentID string) (*models.PaymentResponse, error) {
	p, err := s.store.GetPaymentByPublicID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	audit := models.NewAuditLog(p.ID, models.EventStatusChanged,
		models.StatusPtr(models.StatusPending), models.StatusPtr(models.StatusCancelled), nil)

	if err := s.store.CancelPayment(ctx, p.ID, audit); err != nil {
		return nil, err
	}

	metrics.IncPaymentsCancelled()
	s.logger.Printf("payment cancelled: paymentId=%s", p.PaymentID)

	p.Status = models.StatusCancelled
	return p.ToResponse(), nil
}

func (s *PaymentService) outboxEvent(eventType string, p *models.Payment) (*models.OutboxMessage, error) {
	payload, err := json.Marshal(kafka.NewPaymentEvent(eventType, p))
	if err != nil {
		return nil, fmt.Errorf("marshal payment event: %w", err)
	}
	return &models.OutboxMessage{Topic: s.eventsTopic, Payload: payload}, nil
}

// таймлайн: только записи с новым статусом, по возрастанию времени
func buildTimeline(entries []*models.AuditLog) []models.TimelineEvent {
	timeline := make([]models.TimelineEvent, 0, len(entries))
	for _, a := range entries {
		if a.NewStatus == nil {
			continue
		}
		timeline = append(timeline, models.TimelineEvent{
			Status:      string(*a.NewStatus),
			Timestamp:   a.CreatedAt,
			Description: string(a.EventType),
		})
	}
	return timeline
}

func validateRequest(req *models.PaymentRequest) error {
	fields := map[string]string{}
	if req == nil {
		return &ValidationError{Fields: map[string]string{"request": "is required"}}
	}

	if !models.ValidType(models.PaymentType(strings.ToUpper(req.Type))) {
		fields["type"] = "must be one of PIX, TED, BOLETO"
	}

	switch {
	case req.Amount.LessThanOrEqual(decimal.Zero):
		fields["amount"] = "must be greater than zero"
	case req.Amount.GreaterThan(maxAmount):
		fields["amount"] = "must not exceed 10000.00"
	case req.Amount.Exponent() < -2:
		fields["amount"] = "must have at most 2 decimal places"
	}

	doc := req.Sender.Document
	if !validator.ValidCPF(doc) && !validator.ValidCNPJ(doc) {
		fields["sender.document"] = "must be a valid CPF or CNPJ"
	}
	if strings.TrimSpace(req.Sender.BankCode) == "" {
		fields["sender.bank_code"] = "is required"
	}
	if strings.TrimSpace(req.Sender.Account) == "" {
		fields["sender.account"] = "is required"
	}

	if !validator.ValidPixKey(strings.TrimSpace(req.Receiver.PixKey), strings.TrimSpace(req.Receiver.PixKeyType)) {
		fields["receiver.pix_key"] = "must match the declared key type"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
