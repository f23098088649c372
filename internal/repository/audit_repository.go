package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"payment_processing/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository пишет в audit_log только INSERT: UPDATE/DELETE у журнала
// нет по определению.
type AuditRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *AuditRepository) CreateTx(ctx context.Context, tx pgx.Tx, a *models.AuditLog) error {
	sqlStr, args, err := r.buildInsert(a)
	if err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Create – вне транзакции, для detection-only записей верификационного скана.
func (r *AuditRepository) Create(ctx context.Context, a *models.AuditLog) error {
	sqlStr, args, err := r.buildInsert(a)
	if err != nil {
		return err
	}
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) buildInsert(a *models.AuditLog) (string, []any, error) {
	if a == nil {
		return "", nil, fmt.Errorf("audit log is nil")
	}
	if a.EventType == "" {
		return "", nil, fmt.Errorf("event_type is empty")
	}

	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("marshal audit metadata: %w", err)
	}

	var oldStatus, newStatus any
	if a.OldStatus != nil {
		oldStatus = string(*a.OldStatus)
	}
	if a.NewStatus != nil {
		newStatus = string(*a.NewStatus)
	}

	q := r.sb.
		Insert("audit_log").
		Columns("payment_id", "event_type", "old_status", "new_status", "metadata").
		Values(a.PaymentID.String(), string(a.EventType), oldStatus, newStatus, metadata).
		Suffix("RETURNING id, created_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert audit log: %w", err)
	}
	return sqlStr, args, nil
}

// ListByPaymentID – записи одного платежа по возрастанию времени,
// для восстановления таймлайна.
func (r *AuditRepository) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*models.AuditLog, error) {
	q := r.sb.
		Select("id", "payment_id::text", "event_type", "old_status", "new_status", "metadata", "created_at").
		From("audit_log").
		Where(sq.Eq{"payment_id": paymentID.String()}).
		OrderBy("created_at ASC", "id ASC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select audit log: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	result := make([]*models.AuditLog, 0)
	for rows.Next() {
		var (
			a         models.AuditLog
			pidRaw    string
			oldStatus pgtype.Text
			newStatus pgtype.Text
			metadata  []byte
		)

		if err := rows.Scan(&a.ID, &pidRaw, &a.EventType, &oldStatus, &newStatus, &metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}

		pid, err := uuid.Parse(pidRaw)
		if err != nil {
			return nil, fmt.Errorf("parse audit payment id: %w", err)
		}
		a.PaymentID = pid

		if oldStatus.Valid {
			s := models.PaymentStatus(oldStatus.String)
			a.OldStatus = &s
		}
		if newStatus.Valid {
			s := models.PaymentStatus(newStatus.String)
			a.NewStatus = &s
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}

		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return result, nil
}
