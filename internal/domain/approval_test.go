package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestApproval собирает DRAFT-агрегат с n шагами (порядок с 1).
func newTestApproval(n int) *Approval {
	now := time.Now().UTC()
	a := &Approval{
		ID:        uuid.New(),
		Status:    StatusDraft,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i := 1; i <= n; i++ {
		a.Steps = append(a.Steps, &Step{
			ID:         uuid.New(),
			StepOrder:  i,
			AssigneeID: uuid.New(),
			Status:     StepPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return a
}

func TestStartProcess(t *testing.T) {
	t.Run("activates first step", func(t *testing.T) {
		a := newTestApproval(3)

		require.NoError(t, a.StartProcess())

		assert.Equal(t, StatusInProgress, a.Status)
		assert.Equal(t, StepActive, a.Steps[0].Status)
		assert.Equal(t, StepPending, a.Steps[1].Status)
		require.NotNil(t, a.ActiveStep())
		assert.Equal(t, 1, a.ActiveStep().StepOrder)
	})

	t.Run("rejects non-draft approval", func(t *testing.T) {
		a := newTestApproval(2)
		require.NoError(t, a.StartProcess())

		err := a.StartProcess()

		var ise *InvalidStateError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "Approval must be in DRAFT status to start", ise.Reason)
	})

	t.Run("rejects approval without steps", func(t *testing.T) {
		a := newTestApproval(0)

		err := a.StartProcess()

		var ise *InvalidStateError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "Cannot start approval without steps", ise.Reason)
	})
}

func TestApproveStep(t *testing.T) {
	t.Run("approves active step and activates next", func(t *testing.T) {
		a := newTestApproval(3)
		require.NoError(t, a.StartProcess())
		approver := uuid.New()

		step, err := a.ApproveStep(a.Steps[0].ID, approver)

		require.NoError(t, err)
		assert.Equal(t, StepApproved, step.Status)
		require.NotNil(t, step.ApproverID)
		assert.Equal(t, approver, *step.ApproverID)
		assert.NotNil(t, step.ApprovedAt)
		assert.Equal(t, StatusInProgress, a.Status)
		assert.Equal(t, StepActive, a.Steps[1].Status)
	})

	t.Run("last step completes the approval", func(t *testing.T) {
		a := newTestApproval(2)
		require.NoError(t, a.StartProcess())

		_, err := a.ApproveStep(a.Steps[0].ID, uuid.New())
		require.NoError(t, err)
		_, err = a.ApproveStep(a.Steps[1].ID, uuid.New())
		require.NoError(t, err)

		assert.Equal(t, StatusApproved, a.Status)
		assert.Nil(t, a.ActiveStep(), "approved workflow must have no active step")
	})

	t.Run("rejects step that is not active yet", func(t *testing.T) {
		a := newTestApproval(3)
		require.NoError(t, a.StartProcess())

		// Шаг 2 еще PENDING — обгонять очередь нельзя
		_, err := a.ApproveStep(a.Steps[1].ID, uuid.New())

		var ise *InvalidStateError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "Only ACTIVE step can be approved", ise.Reason)
		// Отказ ничего не меняет
		assert.Equal(t, StepActive, a.Steps[0].Status)
		assert.Equal(t, StepPending, a.Steps[1].Status)
	})

	t.Run("rejects already approved step", func(t *testing.T) {
		a := newTestApproval(2)
		require.NoError(t, a.StartProcess())
		_, err := a.ApproveStep(a.Steps[0].ID, uuid.New())
		require.NoError(t, err)

		_, err = a.ApproveStep(a.Steps[0].ID, uuid.New())

		var ise *InvalidStateError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "Only ACTIVE step can be approved", ise.Reason)
	})

	t.Run("rejects unknown step", func(t *testing.T) {
		a := newTestApproval(2)
		require.NoError(t, a.StartProcess())

		_, err := a.ApproveStep(uuid.New(), uuid.New())

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "step", nf.Resource)
	})
}

// Инвариант: на любом префиксе валидных утверждений ACTIVE шаг ровно
// один (или ноль после завершения), и пройденные шаги все APPROVED.
func TestSequentialInvariant(t *testing.T) {
	const n = 5
	a := newTestApproval(n)
	require.NoError(t, a.StartProcess())

	for i := 0; i < n; i++ {
		active := a.ActiveStep()
		require.NotNil(t, active)
		assert.Equal(t, i+1, active.StepOrder)

		_, err := a.ApproveStep(active.ID, uuid.New())
		require.NoError(t, err)

		for j := 0; j <= i; j++ {
			assert.Equal(t, StepApproved, a.Steps[j].Status)
		}
	}

	assert.Equal(t, StatusApproved, a.Status)
	assert.Nil(t, a.ActiveStep())
}

func TestNewStepApprovedEvent(t *testing.T) {
	a := newTestApproval(2)
	require.NoError(t, a.StartProcess())
	step, err := a.ApproveStep(a.Steps[0].ID, uuid.New())
	require.NoError(t, err)

	ev, err := NewStepApprovedEvent(a, step)

	require.NoError(t, err)
	assert.Equal(t, AggregateApproval, ev.AggregateType)
	assert.Equal(t, a.ID, ev.AggregateID)
	assert.Equal(t, EventStepApproved, ev.EventType)
	assert.Equal(t, OutboxPending, ev.Status)
	assert.Contains(t, ev.Payload, `"stepOrder":1`)
	assert.Contains(t, ev.Payload, `"approvalStatus":"IN_PROGRESS"`)
	assert.Contains(t, ev.Payload, step.ID.String())
}
