package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/domain"
	"github.com/xela07ax/approval-flow/internal/service"
)

// ApprovalService Описываем, что нам нужно от сервиса
type ApprovalService interface {
	Approve(ctx context.Context, cmd service.ApproveCommand) (service.Result, error)
	Start(ctx context.Context, approvalID uuid.UUID) (service.Result, error)
	Get(ctx context.Context, approvalID uuid.UUID) (service.Result, error)
}

type ApprovalHandler struct {
	service ApprovalService
	logger  *zap.Logger
}

func NewApprovalHandler(s ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		service: s,
		logger:  logger.Named("approval-handler"),
	}
}

// Routes монтирует роуты домена под /api/approvals
func (h *ApprovalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{approvalID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/start", h.Start)
		r.Post("/steps/{stepID}/approve", h.Approve)
	})
	return r
}

// ApproveRequest — тело POST .../steps/{stepID}/approve.
// Имена полей — внешний контракт, не менять.
type ApproveRequest struct {
	ApproverID     string `json:"approverId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// ApproveResponse — проекция агрегата после операции.
type ApproveResponse struct {
	ApprovalID       string  `json:"approvalId"`
	ApprovalStatus   string  `json:"approvalStatus"`
	Version          int64   `json:"version"`
	ActiveStepID     *string `json:"activeStepId,omitempty"`
	ActiveStepStatus *string `json:"activeStepStatus,omitempty"`
	ActiveStepOrder  *int    `json:"activeStepOrder,omitempty"`
}

func toResponse(res service.Result) ApproveResponse {
	resp := ApproveResponse{
		ApprovalID:     res.ApprovalID.String(),
		ApprovalStatus: string(res.ApprovalStatus),
		Version:        res.Version,
	}
	if res.ActiveStepID != nil {
		id := res.ActiveStepID.String()
		status := string(*res.ActiveStepStatus)
		resp.ActiveStepID = &id
		resp.ActiveStepStatus = &status
		resp.ActiveStepOrder = res.ActiveStepOrder
	}
	return resp
}

func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	approvalID, err := uuid.Parse(chi.URLParam(r, "approvalID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid approvalId")
		return
	}
	stepID, err := uuid.Parse(chi.URLParam(r, "stepID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stepId")
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	approverID, err := uuid.Parse(req.ApproverID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "approverId is required")
		return
	}

	res, err := h.service.Approve(r.Context(), service.ApproveCommand{
		ApprovalID:     approvalID,
		StepID:         stepID,
		ApproverID:     approverID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(res))
}

func (h *ApprovalHandler) Start(w http.ResponseWriter, r *http.Request) {
	approvalID, err := uuid.Parse(chi.URLParam(r, "approvalID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid approvalId")
		return
	}

	res, err := h.service.Start(r.Context(), approvalID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(res))
}

func (h *ApprovalHandler) Get(w http.ResponseWriter, r *http.Request) {
	approvalID, err := uuid.Parse(chi.URLParam(r, "approvalID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid approvalId")
		return
	}

	res, err := h.service.Get(r.Context(), approvalID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(res))
}

// writeDomainError маппит таксономию ядра на HTTP-статусы:
// NotFound -> 404, InvalidState -> 409 (сообщение автомата уходит клиенту
// как есть), Validation -> 400, остальное -> 500 без деталей.
func (h *ApprovalHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var nf *domain.NotFoundError
	var is *domain.InvalidStateError
	var ve *domain.ValidationError

	switch {
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &is):
		writeError(w, http.StatusConflict, is.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	default:
		// Инфраструктурный сбой (исчерпаны ретраи, отвал базы):
		// детали в лог, клиенту — обезличенная 500
		h.logger.Error("approve request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
