package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"deskhive/internal/approvals/service"
	httputil "deskhive/pkg/http"
	"deskhive/pkg/logger"
	"deskhive/pkg/model"
)

type ApprovalHandler struct {
	service service.ApprovalService
	log     *logger.Logger
}

func NewApprovalHandler(service service.ApprovalService, log *logger.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		service: service,
		log:     log,
	}
}

func (h *ApprovalHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/approval-requests", h.Create)
	router.GET("/api/v1/approval-requests", h.List)
	router.GET("/api/v1/approval-requests/:requestId", h.GetByID)
	router.POST("/api/v1/approval-requests/:requestId/approve", h.Approve)
	router.POST("/api/v1/approval-requests/:requestId/reject", h.Reject)
}

// decisionRequest is the reviewer's payload for approve and reject.
type decisionRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes"`
}

func (h *ApprovalHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request model.ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "error", writeErr)
		}
		return
	}

	if err := h.service.Create(r.Context(), &request); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, request); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if resourceID := r.URL.Query().Get("resource_id"); resourceID != "" {
		requests, err := h.service.ListByResource(r.Context(), resourceID)
		h.writeList(w, "List", requests, err)
		return
	}

	status := model.ApprovalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.ApprovalPending
	}

	requests, err := h.service.ListByStatus(r.Context(), status)
	h.writeList(w, "List", requests, err)
}

func (h *ApprovalHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	request, err := h.service.GetByID(r.Context(), ps.ByName("requestId"))
	h.writeOne(w, "GetByID", request, err)
}

func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	decision, ok := h.decodeDecision(w, r, "Approve")
	if !ok {
		return
	}

	request, err := h.service.Approve(r.Context(), ps.ByName("requestId"), decision.ReviewerID, decision.Notes)
	h.writeOne(w, "Approve", request, err)
}

func (h *ApprovalHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	decision, ok := h.decodeDecision(w, r, "Reject")
	if !ok {
		return
	}

	request, err := h.service.Reject(r.Context(), ps.ByName("requestId"), decision.ReviewerID, decision.Notes)
	h.writeOne(w, "Reject", request, err)
}

func (h *ApprovalHandler) decodeDecision(w http.ResponseWriter, r *http.Request, op string) (decisionRequest, bool) {
	var decision decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", op, "error", writeErr)
		}
		return decisionRequest{}, false
	}
	return decision, true
}

func (h *ApprovalHandler) writeOne(w http.ResponseWriter, op string, request *model.ApprovalRequest, err error) {
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", op, "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, request); err != nil {
		h.log.Error("failed to write success response", "handler", op, "error", err)
	}
}

func (h *ApprovalHandler) writeList(w http.ResponseWriter, op string, requests []*model.ApprovalRequest, err error) {
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", op, "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, requests); err != nil {
		h.log.Error("failed to write success response", "handler", op, "error", err)
	}
}
