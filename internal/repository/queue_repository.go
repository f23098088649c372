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
)

type QueueRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewQueueRepository(db *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// CreateTx – вставка записи очереди в одной транзакции с платежом.
// Unique index по payment_id гарантирует не больше одной записи на платёж.
func (r *QueueRepository) CreateTx(ctx context.Context, tx pgx.Tx, e *models.QueueEntry) error {
	if e == nil {
		return fmt.Errorf("queue entry is nil")
	}

	q := r.sb.
		Insert("payment_queue").
		Columns("payment_id", "retry_count", "max_retries", "next_retry_at").
		Values(e.PaymentID.String(), e.RetryCount, e.MaxRetries, e.NextRetryAt).
		Suffix("RETURNING id, created_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert queue entry: %w", err)
	}

	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&e.ID, &e.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

// Due(now, limit) – записи, готовые к попытке:
// next_retry_at <= now AND retry_count < max_retries, по next_retry_at ASC.
func (r *QueueRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	q := r.sb.
		Select("id", "payment_id::text", "retry_count", "max_retries", "next_retry_at", "last_error", "created_at").
		From("payment_queue").
		Where(sq.LtOrEq{"next_retry_at": now}).
		Where(sq.Expr("retry_count < max_retries")).
		OrderBy("next_retry_at ASC", "id ASC").
		Limit(uint64(limit))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select due queue entries: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query due queue entries: %w", err)
	}
	defer rows.Close()

	result := make([]*models.QueueEntry, 0, limit)
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue rows: %w", err)
	}
	return result, nil
}

func (r *QueueRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.QueueEntry, error) {
	q := r.sb.
		Select("id", "payment_id::text", "retry_count", "max_retries", "next_retry_at", "last_error", "created_at").
		From("payment_queue").
		Where(sq.Eq{"payment_id": paymentID.String()}).
		Limit(1)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select queue entry: %w", err)
	}

	e, err := scanQueueEntry(r.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

// UpdateRetry – retry_count, next_retry_at и last_error после неудачной
// попытки. Есть вариант в транзакции и вне её (фолбэк при фатальной ошибке
// попытки, когда основная транзакция уже откатилась).
func (r *QueueRepository) UpdateRetry(ctx context.Context, e *models.QueueEntry) error {
	return r.updateRetry(ctx, r.db, e)
}

func (r *QueueRepository) UpdateRetryTx(ctx context.Context, tx pgx.Tx, e *models.QueueEntry) error {
	return r.updateRetry(ctx, tx, e)
}

// pgxExecer покрывает и pgxpool.Pool, и pgx.Tx.
type pgxExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *QueueRepository) updateRetry(ctx context.Context, db pgxExecer, e *models.QueueEntry) error {
	if e == nil {
		return fmt.Errorf("queue entry is nil")
	}

	q := r.sb.
		Update("payment_queue").
		Set("retry_count", e.RetryCount).
		Set("next_retry_at", e.NextRetryAt).
		Set("last_error", e.LastError).
		Where(sq.Eq{"payment_id": e.PaymentID.String()})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update queue retry: %w", err)
	}

	tag, err := db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update queue retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByPaymentIDTx – удаление при терминальном исходе (SUCCESS или
// исчерпание ретраев). Ноль строк не считается ошибкой: запись могла быть
// удалена параллельной веткой.
func (r *QueueRepository) DeleteByPaymentIDTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error {
	q := r.sb.
		Delete("payment_queue").
		Where(sq.Eq{"payment_id": paymentID.String()})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete queue entry: %w", err)
	}

	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

// CountPending – сколько записей ещё может быть обработано
// (retry_count < max_retries), для статистики и метрик.
func (r *QueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_queue WHERE retry_count < max_retries`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending queue entries: %w", err)
	}
	return count, nil
}

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e         models.QueueEntry
		pidRaw    string
		lastError pgtype.Text
	)

	if err := row.Scan(
		&e.ID,
		&pidRaw,
		&e.RetryCount,
		&e.MaxRetries,
		&e.NextRetryAt,
		&lastError,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}

	pid, err := uuid.Parse(pidRaw)
	if err != nil {
		return nil, fmt.Errorf("parse queue payment id: %w", err)
	}
	e.PaymentID = pid

	if lastError.Valid {
		s := lastError.String
		e.LastError = &s
	}
	return &e, nil
}
