package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"deskhive/internal/branchstate/service"
	httputil "deskhive/pkg/http"
	"deskhive/pkg/logger"
)

type BranchStateHandler struct {
	service service.BranchStateService
	log     *logger.Logger
}

func NewBranchStateHandler(service service.BranchStateService, log *logger.Logger) *BranchStateHandler {
	return &BranchStateHandler{
		service: service,
		log:     log,
	}
}

func (h *BranchStateHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/branches/:branchId/state", h.GetState)
}

func (h *BranchStateHandler) GetState(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	state, err := h.service.GetState(r.Context(), ps.ByName("branchId"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetState", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, state); err != nil {
		h.log.Error("failed to write success response", "handler", "GetState", "error", err)
	}
}
