package domain

import (
	"errors"
	"fmt"
)

// Инфраструктурные гонки. Оркестратор гасит их сам и никогда
// не отдает наружу как бизнес-ошибку.
var (
	// ErrDuplicateAction — нарушение uk_action_idempotency: параллельная
	// попытка успела закоммитить ту же самую операцию раньше нас.
	ErrDuplicateAction = errors.New("duplicate approval action")

	// ErrVersionConflict — optimistic lock: версия агрегата в базе уже
	// не та, что мы читали. Лечится повтором всей операции.
	ErrVersionConflict = errors.New("stale approval version")
)

// NotFoundError — запрошенный approval или шаг не существует.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidStateError — переход нарушает конечный автомат.
// Reason уходит клиенту как есть (диагностика самого автомата).
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return e.Reason
}

// ValidationError — пустые или некорректные идентификаторы на входе.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
