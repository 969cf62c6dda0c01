package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"

	AggregateApproval = "Approval"
	EventStepApproved = "ApprovalStepApproved"
)

// OutboxEvent — факт, ожидающий публикации (Transactional Outbox).
// Пишется в той же транзакции, что и мутация агрегата; доставкой
// (PENDING -> SENT) владеет внешний relay, ядро после вставки запись
// не читает и не меняет.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       string // Сериализованный JSON
	Status        string
	CreatedAt     time.Time
}

// stepApprovedPayload — снапшот утвержденного шага для внешних систем.
type stepApprovedPayload struct {
	ApprovalID     string `json:"approvalId"`
	StepID         string `json:"stepId"`
	StepOrder      int    `json:"stepOrder"`
	ApproverID     string `json:"approverId"`
	ApprovedAt     string `json:"approvedAt"`
	ApprovalStatus string `json:"approvalStatus"`
}

// NewStepApprovedEvent собирает событие по итогу перехода шага.
// Ошибка сериализации фатальна для транзакции: лучше откатить мутацию
// целиком, чем закоммитить агрегат без его события.
func NewStepApprovedEvent(a *Approval, step *Step) (*OutboxEvent, error) {
	p := stepApprovedPayload{
		ApprovalID:     a.ID.String(),
		StepID:         step.ID.String(),
		StepOrder:      step.StepOrder,
		ApproverID:     step.ApproverID.String(),
		ApprovedAt:     step.ApprovedAt.UTC().Format(time.RFC3339Nano),
		ApprovalStatus: string(a.Status),
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event payload: %w", err)
	}

	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: AggregateApproval,
		AggregateID:   a.ID,
		EventType:     EventStepApproved,
		Payload:       string(raw),
		Status:        OutboxPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
