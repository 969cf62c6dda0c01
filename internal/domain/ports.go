package domain

import (
	"context"

	"github.com/google/uuid"
)

// Tx — операции ядра внутри одной атомарной единицы работы.
// Все методы работают в рамках одной транзакции хранилища: либо
// коммитится все, либо ничего.
type Tx interface {
	// HasAction проверяет, была ли уже обработана точная четверка.
	HasAction(ctx context.Context, approvalID, stepID, approverID uuid.UUID, idempotencyKey string) (bool, error)

	// GetApproval загружает агрегат целиком (шаги по step_order).
	// Отсутствие — *NotFoundError.
	GetApproval(ctx context.Context, id uuid.UUID) (*Approval, error)

	// InsertAction вставляет запись журнала. Нарушение uk_action_idempotency
	// сигналится как ErrDuplicateAction; предварительная проверка сама по
	// себе гонку не закрывает и единственной защитой быть не может.
	InsertAction(ctx context.Context, rec *ActionLog) error

	// UpdateApproval сохраняет агрегат compare-and-swap'ом по версии.
	// Если версия в базе уже другая — ErrVersionConflict.
	UpdateApproval(ctx context.Context, a *Approval) error

	// StageEvent дописывает outbox-запись. Append-only.
	StageEvent(ctx context.Context, ev *OutboxEvent) error
}

// Store — транзакционная граница ядра. Никаких in-process локов:
// вся координация между инстансами живет в самом хранилище.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// OutboxSource — контракт relay-воркера к таблице outbox_events.
// Узкий интерфейс: только то, что нужно для выгрузки.
type OutboxSource interface {
	// ProcessPending забирает до limit PENDING-записей (с блокировкой от
	// конкурирующих relay-инстансов), прогоняет каждую через publish и
	// помечает успешно опубликованные как SENT в той же транзакции.
	// Возвращает число опубликованных записей.
	ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, ev OutboxEvent) error) (int, error)
}
