package metrics

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StartDBCollectors периодически пересчитывает gauge-метрики по таблицам
// платежей, очереди повторов и outbox.
func StartDBCollectors(ctx context.Context, db *pgxpool.Pool, interval time.Duration, logger *log.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateDBGauges(ctx, db, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateDBGauges(ctx, db, logger)
			}
		}
	}()
}

func updateDBGauges(ctx context.Context, db *pgxpool.Pool, logger *log.Logger) {
	// payments counts by status
	{
		rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM payments GROUP BY status`)
		if err != nil {
			logger.Printf("metrics db query payments: %v", err)
		} else {
			defer rows.Close()
			for rows.Next() {
				var status string
				var cnt int64
				if err := rows.Scan(&status, &cnt); err != nil {
					logger.Printf("metrics db scan payments: %v", err)
					continue
				}
				SetPaymentStatusCount(status, cnt)
			}
		}
	}

	// retry queue entries below the retry limit
	{
		var pending int64
		err := db.QueryRow(ctx, `SELECT COUNT(*) FROM payment_queue WHERE retry_count < max_retries`).Scan(&pending)
		if err != nil {
			logger.Printf("metrics db query retry queue: %v", err)
		} else {
			SetRetryQueuePending(pending)
		}
	}

	// outbox counts by status
	{
		rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM outbox_messages GROUP BY status`)
		if err != nil {
			// если таблица ещё не создана — просто пропускаем
			return
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var cnt int64
			if err := rows.Scan(&status, &cnt); err != nil {
				logger.Printf("metrics db scan outbox: %v", err)
				continue
			}
			SetOutboxStatusCount(status, cnt)
		}
	}
}
