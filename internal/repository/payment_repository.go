package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment_processing/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var paymentColumns = []string{
	"id::text",
	"payment_id",
	"idempotency_key::text",
	"type",
	"amount::text",
	"currency",
	"status",
	"sender_document",
	"sender_bank_code",
	"sender_account",
	"receiver_pix_key",
	"receiver_pix_key_type",
	"confirmation_code",
	"failure_reason",
	"created_at",
	"processed_at",
	"updated_at",
}

type PaymentRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// CreateTx – вставка платежа в рамках транзакции. created_at/updated_at
// проставляет БД. Нарушение unique по idempotency_key -> ErrDuplicate.
func (r *PaymentRepository) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	if p == nil {
		return fmt.Errorf("payment is nil")
	}
	if p.PaymentID == "" {
		return fmt.Errorf("payment_id is empty")
	}

	var idemKey any
	if p.IdempotencyKey != nil {
		idemKey = p.IdempotencyKey.String()
	}

	q := r.sb.
		Insert("payments").
		Columns(
			"id",
			"payment_id",
			"idempotency_key",
			"type",
			"amount",
			"currency",
			"status",
			"sender_document",
			"sender_bank_code",
			"sender_account",
			"receiver_pix_key",
			"receiver_pix_key_type",
		).
		Values(
			p.ID.String(),
			p.PaymentID,
			idemKey,
			string(p.Type),
			p.Amount.StringFixed(2),
			p.Currency,
			string(p.Status),
			p.SenderDocument,
			p.SenderBankCode,
			p.SenderAccount,
			p.ReceiverPixKey,
			p.ReceiverPixKeyType,
		).
		Suffix("RETURNING created_at, updated_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert payment: %w", err)
	}

	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, sq.Eq{"id": id.String()})
}

func (r *PaymentRepository) GetByPublicID(ctx context.Context, paymentID string) (*models.Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("payment_id is empty")
	}
	return r.getOne(ctx, sq.Eq{"payment_id": paymentID})
}

func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, sq.Eq{"idempotency_key": key.String()})
}

func (r *PaymentRepository) getOne(ctx context.Context, filter sq.Eq) (*models.Payment, error) {
	q := r.sb.
		Select(paymentColumns...).
		From("payments").
		Where(filter).
		Limit(1)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select payment: %w", err)
	}

	row := r.db.QueryRow(ctx, sqlStr, args...)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// List(status, limit, offset) – страница платежей + общее количество.
// status == "" означает без фильтра; сортировка created_at DESC.
func (r *PaymentRepository) List(ctx context.Context, status models.PaymentStatus, limit, offset int) ([]*models.Payment, int64, error) {
	filters := sq.And{}
	if status != "" {
		filters = append(filters, sq.Eq{"status": string(status)})
	}

	countQuery := r.sb.Select("COUNT(*)").From("payments")
	if len(filters) > 0 {
		countQuery = countQuery.Where(filters)
	}

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count payments: %w", err)
	}

	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	dataQuery := r.sb.
		Select(paymentColumns...).
		From("payments").
		OrderBy("created_at DESC", "payment_id DESC")
	if len(filters) > 0 {
		dataQuery = dataQuery.Where(filters)
	}
	if limit > 0 {
		dataQuery = dataQuery.Limit(uint64(limit))
	}
	if offset > 0 {
		dataQuery = dataQuery.Offset(uint64(offset))
	}

	dataSQL, dataArgs, err := dataQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build select payments: %w", err)
	}

	rows, err := r.db.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Payment, 0, limit)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}

	return result, total, nil
}

// Stuck(olderThan) – платежи, зависшие в PROCESSING дольше порога.
func (r *PaymentRepository) Stuck(ctx context.Context, olderThan time.Time) ([]*models.Payment, error) {
	return r.selectMany(ctx, sq.And{
		sq.Eq{"status": string(models.StatusProcessing)},
		sq.Lt{"updated_at": olderThan},
	}, 0)
}

// ByStatusUpdatedBefore(status, olderThan, limit) – выборка для
// верификационного скана (SUCCESS старше порога).
func (r *PaymentRepository) ByStatusUpdatedBefore(ctx context.Context, status models.PaymentStatus, olderThan time.Time, limit int) ([]*models.Payment, error) {
	return r.selectMany(ctx, sq.And{
		sq.Eq{"status": string(status)},
		sq.Lt{"updated_at": olderThan},
	}, limit)
}

func (r *PaymentRepository) selectMany(ctx context.Context, filters sq.And, limit int) ([]*models.Payment, error) {
	q := r.sb.
		Select(paymentColumns...).
		From("payments").
		Where(filters).
		OrderBy("updated_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select payments: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return result, nil
}

// MarkProcessingTx – claim: PENDING -> PROCESSING только если строка всё ещё
// PENDING. Ноль затронутых строк -> ErrStatusConflict (запись уже взял другой
// воркер или статус успел измениться).
func (r *PaymentRepository) MarkProcessingTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return r.casUpdateTx(ctx, tx, id, models.StatusPending, func(q sq.UpdateBuilder) sq.UpdateBuilder {
		return q.Set("status", string(models.StatusProcessing))
	})
}

// MarkSuccessTx – from -> SUCCESS, код подтверждения и processed_at.
// processed_at проставляется только здесь, ровно один раз.
func (r *PaymentRepository) MarkSuccessTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from models.PaymentStatus, confirmationCode string) error {
	if !models.CanTransition(from, models.StatusSuccess) {
		return fmt.Errorf("illegal transition %s -> %s", from, models.StatusSuccess)
	}
	return r.casUpdateTx(ctx, tx, id, from, func(q sq.UpdateBuilder) sq.UpdateBuilder {
		return q.
			Set("status", string(models.StatusSuccess)).
			Set("confirmation_code", confirmationCode).
			Set("failure_reason", nil).
			Set("processed_at", sq.Expr("NOW()"))
	})
}

// MarkPendingRetryTx – PROCESSING -> PENDING с причиной "Retry n/max: ...".
func (r *PaymentRepository) MarkPendingRetryTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	return r.casUpdateTx(ctx, tx, id, models.StatusProcessing, func(q sq.UpdateBuilder) sq.UpdateBuilder {
		return q.
			Set("status", string(models.StatusPending)).
			Set("failure_reason", reason)
	})
}

// MarkFailedTx – from -> FAILED с причиной.
func (r *PaymentRepository) MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from models.PaymentStatus, reason string) error {
	if !models.CanTransition(from, models.StatusFailed) {
		return fmt.Errorf("illegal transition %s -> %s", from, models.StatusFailed)
	}
	return r.casUpdateTx(ctx, tx, id, from, func(q sq.UpdateBuilder) sq.UpdateBuilder {
		return q.
			Set("status", string(models.StatusFailed)).
			Set("failure_reason", reason)
	})
}

// MarkCancelledTx – административная отмена, допустима только из PENDING.
func (r *PaymentRepository) MarkCancelledTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return r.casUpdateTx(ctx, tx, id, models.StatusPending, func(q sq.UpdateBuilder) sq.UpdateBuilder {
		return q.Set("status", string(models.StatusCancelled))
	})
}

func (r *PaymentRepository) casUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, from models.PaymentStatus, build func(sq.UpdateBuilder) sq.UpdateBuilder) error {
	q := r.sb.
		Update("payments").
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id.String(), "status": string(from)})
	q = build(q)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update payment status: %w", err)
	}

	tag, err := tx.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// CountByStatus – количество платежей по статусам (для метрик).
func (r *PaymentRepository) CountByStatus(ctx context.Context) (map[models.PaymentStatus]int64, error) {
	q := r.sb.
		Select("status", "COUNT(*)").
		From("payments").
		GroupBy("status")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count payments by status: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("count payments by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PaymentStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.PaymentStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p          models.Payment
		idRaw      string
		idemKey    pgtype.Text
		amountRaw  string
		typeRaw    string
		statusRaw  string
		confCode   pgtype.Text
		failReason pgtype.Text
		processed  pgtype.Timestamptz
	)

	if err := row.Scan(
		&idRaw,
		&p.PaymentID,
		&idemKey,
		&typeRaw,
		&amountRaw,
		&p.Currency,
		&statusRaw,
		&p.SenderDocument,
		&p.SenderBankCode,
		&p.SenderAccount,
		&p.ReceiverPixKey,
		&p.ReceiverPixKeyType,
		&confCode,
		&failReason,
		&p.CreatedAt,
		&processed,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idRaw)
	if err != nil {
		return nil, fmt.Errorf("parse payment id: %w", err)
	}
	p.ID = id

	if idemKey.Valid {
		k, err := uuid.Parse(idemKey.String)
		if err != nil {
			return nil, fmt.Errorf("parse idempotency key: %w", err)
		}
		p.IdempotencyKey = &k
	}

	amount, err := decimal.NewFromString(amountRaw)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount = amount

	p.Type = models.PaymentType(typeRaw)
	p.Status = models.PaymentStatus(statusRaw)

	if confCode.Valid {
		s := confCode.String
		p.ConfirmationCode = &s
	}
	if failReason.Valid {
		s := failReason.String
		p.FailureReason = &s
	}
	if processed.Valid {
		t := processed.Time
		p.ProcessedAt = &t
	}

	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
