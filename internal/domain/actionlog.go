package domain

import (
	"time"

	"github.com/google/uuid"
)

const ActionApprove = "APPROVE"

// ActionLog — неизменяемая запись в журнале идемпотентности.
// Уникальность четверки (approval, step, approver, idempotency_key)
// обеспечивает сама база (uk_action_idempotency) — это единственный
// надежный дедупликатор при нескольких инстансах сервиса.
type ActionLog struct {
	ID             uuid.UUID
	ApprovalID     uuid.UUID
	StepID         uuid.UUID
	ApproverID     uuid.UUID
	IdempotencyKey string
	ActionType     string
	CreatedAt      time.Time
}

func NewActionLog(approvalID, stepID, approverID uuid.UUID, idempotencyKey string) *ActionLog {
	return &ActionLog{
		ID:             uuid.New(),
		ApprovalID:     approvalID,
		StepID:         stepID,
		ApproverID:     approverID,
		IdempotencyKey: idempotencyKey,
		ActionType:     ActionApprove,
		CreatedAt:      time.Now().UTC(),
	}
}
