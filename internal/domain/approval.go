package domain

import (
	"time"

	"github.com/google/uuid"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusDraft      ApprovalStatus = "DRAFT"
	StatusInProgress ApprovalStatus = "IN_PROGRESS"
	StatusApproved   ApprovalStatus = "APPROVED"
)

type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepActive   StepStatus = "ACTIVE"
	StepApproved StepStatus = "APPROVED"
)

// Step — один шаг согласования. Принадлежит своему Approval и мутирует
// только через методы агрегата: снаружи шаг менять запрещено, иначе
// ломается инвариант "не более одного ACTIVE шага".
type Step struct {
	ID         uuid.UUID  `json:"id"`
	StepOrder  int        `json:"step_order"` // Порядок внутри approval, с 1, без дырок
	AssigneeID uuid.UUID  `json:"assignee_id"`
	Status     StepStatus `json:"status"`

	// Заполняются ровно один раз — при переходе в APPROVED
	ApproverID *uuid.UUID `json:"approver_id,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// activate переводит шаг PENDING -> ACTIVE. Вызывается только агрегатом.
func (s *Step) activate(now time.Time) error {
	if s.Status != StepPending {
		return &InvalidStateError{Reason: "Only PENDING step can be activated"}
	}
	s.Status = StepActive
	s.UpdatedAt = now
	return nil
}

// approve переводит шаг ACTIVE -> APPROVED и фиксирует, кто и когда.
// APPROVED — терминальный статус, отката нет.
func (s *Step) approve(approverID uuid.UUID, now time.Time) error {
	if s.Status != StepActive {
		return &InvalidStateError{Reason: "Only ACTIVE step can be approved"}
	}
	s.Status = StepApproved
	s.ApproverID = &approverID
	s.ApprovedAt = &now
	s.UpdatedAt = now
	return nil
}

// Approval — корень агрегата. Steps всегда отсортированы по StepOrder,
// репозиторий обязан загружать их именно в этом порядке.
type Approval struct {
	ID      uuid.UUID      `json:"id"`
	Status  ApprovalStatus `json:"status"`
	Version int64          `json:"version"` // Инкрементируется при каждой записи (optimistic lock)
	Steps   []*Step        `json:"steps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StartProcess запускает процесс: DRAFT -> IN_PROGRESS, первый шаг
// становится ACTIVE. Повторный вызов падает по предусловию статуса.
func (a *Approval) StartProcess() error {
	if a.Status != StatusDraft {
		return &InvalidStateError{Reason: "Approval must be in DRAFT status to start"}
	}
	if len(a.Steps) == 0 {
		return &InvalidStateError{Reason: "Cannot start approval without steps"}
	}

	now := time.Now().UTC()
	if err := a.Steps[0].activate(now); err != nil {
		return err
	}
	a.Status = StatusInProgress
	a.UpdatedAt = now
	return nil
}

// ApproveStep утверждает шаг stepID от имени approverID.
// Утвердить можно только текущий ACTIVE шаг — любой другой (уже
// пройденный или еще не достигнутый) отклоняется InvalidStateError.
//
// "Последний шаг" определяется позицией в упорядоченном списке, а не
// подсчетом утвержденных: если утвержден шаг на последней позиции —
// агрегат переходит в APPROVED и новых ACTIVE шагов не появляется,
// иначе активируется следующий по порядку.
//
// Возвращает мутированный шаг — из него оркестратор собирает событие.
func (a *Approval) ApproveStep(stepID, approverID uuid.UUID) (*Step, error) {
	idx := -1
	for i, s := range a.Steps {
		if s.ID == stepID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, &NotFoundError{Resource: "step", ID: stepID.String()}
	}

	step := a.Steps[idx]
	now := time.Now().UTC()
	if err := step.approve(approverID, now); err != nil {
		return nil, err
	}
	a.UpdatedAt = now

	if idx == len(a.Steps)-1 {
		// Утвержден последний шаг — процесс завершен
		a.Status = StatusApproved
	} else {
		if err := a.Steps[idx+1].activate(now); err != nil {
			return nil, err
		}
		a.Status = StatusInProgress
	}

	return step, nil
}

// ActiveStep возвращает единственный ACTIVE шаг или nil.
// Чистое чтение, без побочных эффектов.
func (a *Approval) ActiveStep() *Step {
	for _, s := range a.Steps {
		if s.Status == StepActive {
			return s
		}
	}
	return nil
}
