package service

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/domain"
)

/*
Файл approval_service.go содержит оркестратор approve — транзакционный
use-case поверх трех компонентов ядра: агрегата Approval, журнала
идемпотентности и transactional outbox.

Гарантии под конкуренцией:
  - Ровно один закоммиченный переход, одна строка журнала и одна
    outbox-запись на уникальную четверку (approval, step, approver, key) —
    сколько бы параллельных дублей не прилетело.
  - DuplicateError и конфликт версий гасятся внутри: наружу уходит тот же
    ответ, который увидел бы одиночный вызов без гонки.
  - Отказы бизнес-правил (NotFound, InvalidState) детерминированы и не
    оставляют в базе ни одной записи.
*/

// ApproveCommand — входная команда операции approve.
type ApproveCommand struct {
	ApprovalID     uuid.UUID
	StepID         uuid.UUID
	ApproverID     uuid.UUID
	IdempotencyKey string
}

// Validate отсекает пустые идентификаторы до открытия транзакции.
func (c ApproveCommand) Validate() error {
	if c.ApprovalID == uuid.Nil {
		return &domain.ValidationError{Field: "approvalId", Reason: "is required"}
	}
	if c.StepID == uuid.Nil {
		return &domain.ValidationError{Field: "stepId", Reason: "is required"}
	}
	if c.ApproverID == uuid.Nil {
		return &domain.ValidationError{Field: "approverId", Reason: "is required"}
	}
	if c.IdempotencyKey == "" {
		return &domain.ValidationError{Field: "idempotencyKey", Reason: "is required"}
	}
	return nil
}

// Result — консистентная проекция агрегата после операции.
type Result struct {
	ApprovalID       uuid.UUID
	ApprovalStatus   domain.ApprovalStatus
	Version          int64
	ActiveStepID     *uuid.UUID
	ActiveStepStatus *domain.StepStatus
	ActiveStepOrder  *int
}

func buildResult(a *domain.Approval) Result {
	res := Result{
		ApprovalID:     a.ID,
		ApprovalStatus: a.Status,
		Version:        a.Version,
	}
	if active := a.ActiveStep(); active != nil {
		res.ActiveStepID = &active.ID
		res.ActiveStepStatus = &active.Status
		res.ActiveStepOrder = &active.StepOrder
	}
	return res
}

type ApprovalService struct {
	store   domain.Store
	logger  *zap.Logger
	metrics *Metrics

	// Попытки на всю операцию при конфликте версий
	conflictRetries uint
}

func NewApprovalService(store domain.Store, logger *zap.Logger, metrics *Metrics, conflictRetries uint) *ApprovalService {
	if conflictRetries == 0 {
		conflictRetries = 3
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &ApprovalService{
		store:           store,
		logger:          logger.Named("approval-service"),
		metrics:         metrics,
		conflictRetries: conflictRetries,
	}
}

// Approve — единица работы из следующих шагов, атомарно:
//  1. проверка журнала идемпотентности по четверке;
//  2. загрузка агрегата и переход состояния;
//  3. вставка записи журнала (уникальность держит база);
//  4. version-checked сохранение агрегата;
//  5. постановка outbox-события, если шаг утвержден.
//
// Конфликт версий повторяет всю операцию с нуля: повторная проверка
// журнала сама разберется, успел конкурент закоммититься или нет.
func (s *ApprovalService) Approve(ctx context.Context, cmd ApproveCommand) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	var res Result

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.conflictRetries),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, domain.ErrVersionConflict) {
				s.metrics.ConflictRetries.Inc()
				s.logger.Debug("version conflict, retrying approve",
					zap.String("approval_id", cmd.ApprovalID.String()))
				return true
			}
			return false
		}),
	)

	err := r.Do(func() error {
		return s.store.WithinTx(ctx, func(tx domain.Tx) error {
			var txErr error
			res, txErr = s.approveOnce(ctx, tx, cmd)
			return txErr
		})
	})

	outcome := outcomeFor(err)
	s.metrics.ApproveTotal.WithLabelValues(outcome).Inc()
	s.metrics.ApproveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// approveOnce — одна попытка, целиком внутри переданной транзакции.
func (s *ApprovalService) approveOnce(ctx context.Context, tx domain.Tx, cmd ApproveCommand) (Result, error) {
	// 1. Журнал идемпотентности: четверка уже обработана (нами же или
	// конкурентом) — отдаем текущее состояние, переход не повторяем
	processed, err := tx.HasAction(ctx, cmd.ApprovalID, cmd.StepID, cmd.ApproverID, cmd.IdempotencyKey)
	if err != nil {
		return Result{}, err
	}
	if processed {
		s.metrics.DuplicatesAbsorbed.Inc()
		approval, err := tx.GetApproval(ctx, cmd.ApprovalID)
		if err != nil {
			return Result{}, err
		}
		return buildResult(approval), nil
	}

	// 2. Загрузка агрегата и переход State Machine
	approval, err := tx.GetApproval(ctx, cmd.ApprovalID)
	if err != nil {
		return Result{}, err
	}

	step, err := approval.ApproveStep(cmd.StepID, cmd.ApproverID)
	if err != nil {
		// NotFound / InvalidState: транзакция откатится, нулевые записи
		return Result{}, err
	}

	// 3. Insert-then-catch: исход решает ограничение в базе, не пречек
	rec := domain.NewActionLog(cmd.ApprovalID, cmd.StepID, cmd.ApproverID, cmd.IdempotencyKey)
	if err := tx.InsertAction(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateAction) {
			// Конкурент закоммитился первым. Нашу мутацию выбрасываем,
			// перечитываем актуальный агрегат и отвечаем его состоянием
			s.metrics.DuplicatesAbsorbed.Inc()
			s.logger.Debug("duplicate action absorbed",
				zap.String("approval_id", cmd.ApprovalID.String()),
				zap.String("idempotency_key", cmd.IdempotencyKey))

			current, err := tx.GetApproval(ctx, cmd.ApprovalID)
			if err != nil {
				return Result{}, err
			}
			return buildResult(current), nil
		}
		return Result{}, err
	}

	// 4. Optimistic lock: провал — ErrVersionConflict, ретрай всей операции
	if err := tx.UpdateApproval(ctx, approval); err != nil {
		return Result{}, err
	}

	// 5. Переход состоялся — ставим ровно одно событие в outbox
	if step.Status == domain.StepApproved {
		ev, err := domain.NewStepApprovedEvent(approval, step)
		if err != nil {
			// Ошибка сериализации фатальна: лучше полный rollback,
			// чем закоммиченный агрегат без его события
			return Result{}, err
		}
		if err := tx.StageEvent(ctx, ev); err != nil {
			return Result{}, err
		}
	}

	s.logger.Info("step approved",
		zap.String("approval_id", cmd.ApprovalID.String()),
		zap.String("step_id", cmd.StepID.String()),
		zap.String("status", string(approval.Status)))

	return buildResult(approval), nil
}

// Start запускает процесс согласования: DRAFT -> IN_PROGRESS.
// Та же транзакционная дисциплина, что и у Approve.
func (s *ApprovalService) Start(ctx context.Context, approvalID uuid.UUID) (Result, error) {
	if approvalID == uuid.Nil {
		return Result{}, &domain.ValidationError{Field: "approvalId", Reason: "is required"}
	}

	var res Result
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		approval, err := tx.GetApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		if err := approval.StartProcess(); err != nil {
			return err
		}
		if err := tx.UpdateApproval(ctx, approval); err != nil {
			return err
		}
		res = buildResult(approval)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("approval process started", zap.String("approval_id", approvalID.String()))
	return res, nil
}

// Get возвращает проекцию без мутаций.
func (s *ApprovalService) Get(ctx context.Context, approvalID uuid.UUID) (Result, error) {
	if approvalID == uuid.Nil {
		return Result{}, &domain.ValidationError{Field: "approvalId", Reason: "is required"}
	}

	var res Result
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		approval, err := tx.GetApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		res = buildResult(approval)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func outcomeFor(err error) string {
	var nf *domain.NotFoundError
	var is *domain.InvalidStateError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &is):
		return "invalid_state"
	default:
		return "error"
	}
}
