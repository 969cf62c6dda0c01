package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/domain"
)

// ProcessPending выгружает пачку PENDING-записей outbox.
//
// FOR UPDATE SKIP LOCKED позволяет гонять несколько relay-инстансов
// параллельно: каждый берет свои строки, чужие пропускает. Публикация
// идет внутри транзакции, успешные строки помечаются SENT тем же
// коммитом. Упали после publish, но до commit — строка останется
// PENDING и уйдет повторно: семантика at-least-once.
func (s *Store) ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, ev domain.OutboxEvent) error) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, status, created_at
	          FROM outbox_events
	          WHERE status = $1
	          ORDER BY created_at ASC
	          LIMIT $2
	          FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, domain.OutboxPending, limit)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to query outbox: %w", err)
	}

	events := make([]domain.OutboxEvent, 0, limit)
	for rows.Next() {
		var ev domain.OutboxEvent
		err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID,
			&ev.EventType, &ev.Payload, &ev.Status, &ev.CreatedAt)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("postgres: failed to scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("postgres: outbox rows iteration error: %w", err)
	}

	if len(events) == 0 {
		return 0, nil
	}

	sent := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		if err := publish(ctx, ev); err != nil {
			// Публикуем строго по порядку создания: на первой же ошибке
			// останавливаемся, уже опубликованное фиксируем
			s.logger.Warn("outbox publish failed, stopping batch",
				zap.String("event_id", ev.ID.String()), zap.Error(err))
			break
		}
		sent = append(sent, ev.ID)
	}

	if len(sent) > 0 {
		markQuery := `UPDATE outbox_events SET status = $1 WHERE id = ANY($2)`
		if _, err := tx.Exec(ctx, markQuery, domain.OutboxSent, sent); err != nil {
			return 0, fmt.Errorf("postgres: failed to mark outbox events sent: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: failed to commit outbox tx: %w", err)
	}
	return len(sent), nil
}
