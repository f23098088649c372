package service

import (
	"context"
	"sync"
	"time"

	"payment_processing/internal/models"
	"payment_processing/internal/repository"

	"github.com/google/uuid"
)

// memStore — in-memory реализация Store с той же CAS-семантикой, что у
// repository.Store. Используется всеми сервисными тестами.
type memStore struct {
	mu sync.Mutex

	seq      int64
	payments map[uuid.UUID]*models.Payment
	byKey    map[uuid.UUID]uuid.UUID
	queue    map[uuid.UUID]*models.QueueEntry
	audits   []*models.AuditLog
	outbox   []*models.OutboxMessage
	order    []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		payments: map[uuid.UUID]*models.Payment{},
		byKey:    map[uuid.UUID]uuid.UUID{},
		queue:    map[uuid.UUID]*models.QueueEntry{},
	}
}

func (m *memStore) NextPaymentSeq(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *memStore) CreatePayment(ctx context.Context, p *models.Payment, audit *models.AuditLog, evt *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IdempotencyKey != nil {
		if _, ok := m.byKey[*p.IdempotencyKey]; ok {
			return repository.ErrDuplicate
		}
	}

	// как и repository.CreateTx, возвращаем временные метки вызывающему
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	m.payments[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	if p.IdempotencyKey != nil {
		m.byKey[*p.IdempotencyKey] = cp.ID
	}

	m.queue[cp.ID] = models.NewQueueEntry(cp.ID, now)

	audit.PaymentID = cp.ID
	m.appendAudit(audit)
	m.appendOutbox(evt)
	return nil
}

func (m *memStore) ClaimProcessing(ctx context.Context, id uuid.UUID, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != models.StatusPending {
		return repository.ErrStatusConflict
	}
	p.Status = models.StatusProcessing
	p.UpdatedAt = time.Now()
	m.appendAudit(audit)
	return nil
}

func (m *memStore) MarkSuccess(ctx context.Context, id uuid.UUID, from models.PaymentStatus, confirmationCode string, audit *models.AuditLog, evt *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != from {
		return repository.ErrStatusConflict
	}
	now := time.Now()
	p.Status = models.StatusSuccess
	p.ConfirmationCode = &confirmationCode
	p.ProcessedAt = &now
	p.UpdatedAt = now
	delete(m.queue, id)
	m.appendAudit(audit)
	m.appendOutbox(evt)
	return nil
}

func (m *memStore) ScheduleRetry(ctx context.Context, entry *models.QueueEntry, reason string, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[entry.PaymentID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != models.StatusProcessing {
		return repository.ErrStatusConflict
	}
	p.Status = models.StatusPending
	p.FailureReason = &reason
	p.UpdatedAt = time.Now()

	cp := *entry
	m.queue[entry.PaymentID] = &cp
	m.appendAudit(audit)
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, id uuid.UUID, from models.PaymentStatus, reason string, audit *models.AuditLog, evt *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != from {
		return repository.ErrStatusConflict
	}
	p.Status = models.StatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = time.Now()
	delete(m.queue, id)
	m.appendAudit(audit)
	m.appendOutbox(evt)
	return nil
}

func (m *memStore) CancelPayment(ctx context.Context, id uuid.UUID, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != models.StatusPending {
		return repository.ErrStatusConflict
	}
	p.Status = models.StatusCancelled
	p.UpdatedAt = time.Now()
	delete(m.queue, id)
	m.appendAudit(audit)
	return nil
}

func (m *memStore) BumpRetry(ctx context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queue[entry.PaymentID]; !ok {
		return repository.ErrNotFound
	}
	cp := *entry
	m.queue[entry.PaymentID] = &cp
	return nil
}

func (m *memStore) RecordAudit(ctx context.Context, a *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendAudit(a)
	return nil
}

func (m *memStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetPaymentByPublicID(ctx context.Context, paymentID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.payments {
		if p.PaymentID == paymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) GetPaymentByIdempotencyKey(ctx context.Context, key uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m.payments[id]
	return &cp, nil
}

func (m *memStore) ListPayments(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.Payment
	for _, id := range m.order {
		p := m.payments[id]
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memStore) ListAudit(ctx context.Context, paymentID uuid.UUID) ([]*models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.AuditLog
	for _, a := range m.audits {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) DueQueueEntries(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.QueueEntry
	for _, id := range m.order {
		e, ok := m.queue[id]
		if !ok || !e.Due(now) {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) QueueEntry(ctx context.Context, paymentID uuid.UUID) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.queue[paymentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) PendingQueueCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, e := range m.queue {
		if e.CanRetry() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) StuckPayments(ctx context.Context, olderThan time.Time) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Payment
	for _, id := range m.order {
		p := m.payments[id]
		if p.Status == models.StatusProcessing && p.UpdatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) SuccessfulBefore(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Payment
	for _, id := range m.order {
		p := m.payments[id]
		if p.Status != models.StatusSuccess || !p.UpdatedAt.Before(olderThan) {
			continue
		}
		cp := *p
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) appendAudit(a *models.AuditLog) {
	if a == nil {
		return
	}
	a.ID = int64(len(m.audits) + 1)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.audits = append(m.audits, a)
}

func (m *memStore) appendOutbox(evt *models.OutboxMessage) {
	if evt == nil {
		return
	}
	evt.ID = len(m.outbox) + 1
	evt.MessageID = uuid.NewString()
	evt.Status = "pending"
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}
	m.outbox = append(m.outbox, evt)
}

// прямое изменение состояния для подготовки тестовых сценариев
func (m *memStore) seedPayment(p *models.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	m.order = append(m.order, p.ID)
}

func (m *memStore) auditsFor(paymentID uuid.UUID) []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditLog
	for _, a := range m.audits {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out
}
