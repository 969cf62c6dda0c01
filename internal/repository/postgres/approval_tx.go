package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xela07ax/approval-flow/internal/domain"
)

// Код ошибки Postgres для нарушения уникального ограничения
const pgUniqueViolation = "23505"

// approvalTx реализует domain.Tx поверх открытой pgx-транзакции.
type approvalTx struct {
	tx pgx.Tx
}

// HasAction проверяет журнал идемпотентности по точной четверке.
func (t *approvalTx) HasAction(ctx context.Context, approvalID, stepID, approverID uuid.UUID, idempotencyKey string) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM approval_action_logs
	            WHERE approval_id = $1 AND step_id = $2 AND approver_id = $3 AND idempotency_key = $4)`

	var found bool
	err := t.tx.QueryRow(ctx, query, approvalID, stepID, approverID, idempotencyKey).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check action log: %w", err)
	}
	return found, nil
}

// GetApproval загружает агрегат вместе с шагами (строго по step_order).
func (t *approvalTx) GetApproval(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	query := `SELECT id, status, version, created_at, updated_at
	          FROM approvals WHERE id = $1`

	a := &domain.Approval{}
	err := t.tx.QueryRow(ctx, query, id).Scan(&a.ID, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "approval", ID: id.String()}
		}
		return nil, fmt.Errorf("postgres: failed to load approval: %w", err)
	}

	stepsQuery := `SELECT id, step_order, assignee_id, status, approver_id, approved_at, created_at, updated_at
	               FROM approval_steps
	               WHERE approval_id = $1
	               ORDER BY step_order ASC`

	rows, err := t.tx.Query(ctx, stepsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s := &domain.Step{}
		// ApproverID и ApprovedAt — указатели: pgx сам превращает NULL в nil
		err := rows.Scan(&s.ID, &s.StepOrder, &s.AssigneeID, &s.Status,
			&s.ApproverID, &s.ApprovedAt, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan step: %w", err)
		}
		a.Steps = append(a.Steps, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return a, nil
}

// InsertAction пишет запись журнала под savepoint'ом (вложенный Begin в
// pgx). Паттерн insert-then-catch: при нарушении uk_action_idempotency
// откатывается только savepoint, внешняя транзакция остается живой и
// оркестратор может перечитать актуальное состояние агрегата.
func (t *approvalTx) InsertAction(ctx context.Context, rec *domain.ActionLog) error {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to open savepoint: %w", err)
	}

	query := `INSERT INTO approval_action_logs
	            (id, approval_id, step_id, approver_id, idempotency_key, action_type, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = nested.Exec(ctx, query,
		rec.ID, rec.ApprovalID, rec.StepID, rec.ApproverID,
		rec.IdempotencyKey, rec.ActionType, rec.CreatedAt)
	if err != nil {
		_ = nested.Rollback(ctx)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrDuplicateAction
		}
		return fmt.Errorf("postgres: failed to insert action log: %w", err)
	}

	if err := nested.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to release savepoint: %w", err)
	}
	return nil
}

// UpdateApproval сохраняет агрегат compare-and-swap'ом: UPDATE проходит
// только если version в базе совпадает с прочитанной. Ноль строк —
// значит нас опередили, сигналим ErrVersionConflict.
func (t *approvalTx) UpdateApproval(ctx context.Context, a *domain.Approval) error {
	query := `UPDATE approvals
	          SET status = $1, version = version + 1, updated_at = $2
	          WHERE id = $3 AND version = $4`

	tag, err := t.tx.Exec(ctx, query, a.Status, a.UpdatedAt, a.ID, a.Version)
	if err != nil {
		return fmt.Errorf("postgres: failed to update approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	a.Version++

	stepQuery := `UPDATE approval_steps
	              SET status = $1, approver_id = $2, approved_at = $3, updated_at = $4
	              WHERE id = $5`

	for _, s := range a.Steps {
		_, err := t.tx.Exec(ctx, stepQuery, s.Status, s.ApproverID, s.ApprovedAt, s.UpdatedAt, s.ID)
		if err != nil {
			return fmt.Errorf("postgres: failed to update step %s: %w", s.ID, err)
		}
	}
	return nil
}

// StageEvent дописывает outbox-запись в текущую транзакцию.
func (t *approvalTx) StageEvent(ctx context.Context, ev *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events
	            (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.tx.Exec(ctx, query,
		ev.ID, ev.AggregateType, ev.AggregateID, ev.EventType,
		ev.Payload, ev.Status, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to stage outbox event: %w", err)
	}
	return nil
}
