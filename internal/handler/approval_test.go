package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/domain"
	"github.com/xela07ax/approval-flow/internal/service"
)

type stubService struct {
	res service.Result
	err error

	gotCmd service.ApproveCommand
}

func (s *stubService) Approve(ctx context.Context, cmd service.ApproveCommand) (service.Result, error) {
	s.gotCmd = cmd
	return s.res, s.err
}

func (s *stubService) Start(ctx context.Context, approvalID uuid.UUID) (service.Result, error) {
	return s.res, s.err
}

func (s *stubService) Get(ctx context.Context, approvalID uuid.UUID) (service.Result, error) {
	return s.res, s.err
}

func newTestHandler(svc ApprovalService) http.Handler {
	h := NewApprovalHandler(svc, zap.NewNop())
	return h.Routes()
}

func inProgressResult(order int) service.Result {
	stepID := uuid.New()
	status := domain.StepActive
	return service.Result{
		ApprovalID:       uuid.New(),
		ApprovalStatus:   domain.StatusInProgress,
		Version:          1,
		ActiveStepID:     &stepID,
		ActiveStepStatus: &status,
		ActiveStepOrder:  &order,
	}
}

func approveURL(approvalID, stepID string) string {
	return fmt.Sprintf("/%s/steps/%s/approve", approvalID, stepID)
}

func TestApproveEndpoint(t *testing.T) {
	validBody := `{"approverId":"` + uuid.New().String() + `","idempotencyKey":"key-1"}`

	t.Run("ok", func(t *testing.T) {
		svc := &stubService{res: inProgressResult(2)}
		router := newTestHandler(svc)

		req := httptest.NewRequest(http.MethodPost,
			approveURL(uuid.New().String(), uuid.New().String()),
			bytes.NewBufferString(validBody))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp ApproveResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "IN_PROGRESS", resp.ApprovalStatus)
		assert.Equal(t, int64(1), resp.Version)
		require.NotNil(t, resp.ActiveStepOrder)
		assert.Equal(t, 2, *resp.ActiveStepOrder)
		assert.Equal(t, "key-1", svc.gotCmd.IdempotencyKey)
	})

	t.Run("completed approval omits active step fields", func(t *testing.T) {
		svc := &stubService{res: service.Result{
			ApprovalID:     uuid.New(),
			ApprovalStatus: domain.StatusApproved,
			Version:        2,
		}}
		router := newTestHandler(svc)

		req := httptest.NewRequest(http.MethodPost,
			approveURL(uuid.New().String(), uuid.New().String()),
			bytes.NewBufferString(validBody))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "activeStepId")
		assert.Contains(t, rec.Body.String(), `"approvalStatus":"APPROVED"`)
	})

	t.Run("bad approval id", func(t *testing.T) {
		router := newTestHandler(&stubService{})

		req := httptest.NewRequest(http.MethodPost,
			approveURL("not-a-uuid", uuid.New().String()),
			bytes.NewBufferString(validBody))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		router := newTestHandler(&stubService{})

		req := httptest.NewRequest(http.MethodPost,
			approveURL(uuid.New().String(), uuid.New().String()),
			bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blank approver id", func(t *testing.T) {
		router := newTestHandler(&stubService{})

		req := httptest.NewRequest(http.MethodPost,
			approveURL(uuid.New().String(), uuid.New().String()),
			bytes.NewBufferString(`{"idempotencyKey":"k"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "approverId is required")
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			name       string
			err        error
			wantStatus int
			wantBody   string
		}{
			{"not found", &domain.NotFoundError{Resource: "approval", ID: "x"}, http.StatusNotFound, "approval not found"},
			{"invalid state", &domain.InvalidStateError{Reason: "Only ACTIVE step can be approved"}, http.StatusConflict, "Only ACTIVE step can be approved"},
			{"validation", &domain.ValidationError{Field: "idempotencyKey", Reason: "is required"}, http.StatusBadRequest, "idempotencyKey"},
			{"infra failure is opaque", domain.ErrVersionConflict, http.StatusInternalServerError, "internal server error"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				router := newTestHandler(&stubService{err: tc.err})

				req := httptest.NewRequest(http.MethodPost,
					approveURL(uuid.New().String(), uuid.New().String()),
					bytes.NewBufferString(validBody))
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)

				assert.Equal(t, tc.wantStatus, rec.Code)
				assert.Contains(t, rec.Body.String(), tc.wantBody)
			})
		}
	})
}

func TestStartEndpoint(t *testing.T) {
	svc := &stubService{res: inProgressResult(1)}
	router := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/"+uuid.New().String()+"/start", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"approvalStatus":"IN_PROGRESS"`)
}

func TestGetEndpoint(t *testing.T) {
	svc := &stubService{res: inProgressResult(1)}
	router := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ApproveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.ActiveStepStatus)
	assert.Equal(t, "ACTIVE", *resp.ActiveStepStatus)
}
