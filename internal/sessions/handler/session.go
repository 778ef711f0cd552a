package handler

import (
	"encoding/json"
	"net/http"

	"keyring/internal/sessions/service"
	apperrors "keyring/pkg/errors"
	httputil "keyring/pkg/http"
	"keyring/pkg/logger"
	"keyring/pkg/middleware"
	"keyring/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// SessionHandler exposes the holder-facing routes: the merged tool
// listing, checkout, and return.
type SessionHandler struct {
	service service.SessionService
	log     *logger.Logger
}

func NewSessionHandler(service service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		log:     log,
	}
}

type checkoutRequest struct {
	ToolID          string `json:"tool_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

type returnRequest struct {
	ToolID string `json:"tool_id"`
}

type returnResponse struct {
	ToolID            string `json:"tool_id"`
	CompletedSessions int64  `json:"completed_sessions"`
}

func (h *SessionHandler) ListTools(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Anonymous browsing is allowed; i_have_key is simply false.
	caller := middleware.CallerFrom(r.Context())

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListTools", "error", writeErr)
		}
		return
	}

	views, total, err := h.service.MergedToolView(r.Context(), caller, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ListTools", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, views, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListTools", "error", err)
	}
}

func (h *SessionHandler) Checkout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, err := h.caller(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Checkout", "error", writeErr)
		}
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Checkout", "error", writeErr)
		}
		return
	}

	resp, err := h.service.Checkout(r.Context(), &model.CheckoutRequest{
		ToolID:          req.ToolID,
		Holder:          caller,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Checkout", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, resp); err != nil {
		h.log.Error("failed to write created response", "handler", "Checkout", "error", err)
	}
}

func (h *SessionHandler) Return(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, err := h.caller(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Return", "error", writeErr)
		}
		return
	}

	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Return", "error", writeErr)
		}
		return
	}

	count, err := h.service.Return(r.Context(), &model.ReturnRequest{
		ToolID: req.ToolID,
		Holder: caller,
	})
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Return", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, returnResponse{
		ToolID:            req.ToolID,
		CompletedSessions: count,
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Return", "error", err)
	}
}

func (h *SessionHandler) caller(r *http.Request) (string, error) {
	caller := middleware.CallerFrom(r.Context())
	if caller == "" {
		return "", apperrors.InvalidInput("Missing caller identity header")
	}
	return caller, nil
}

func (h *SessionHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/tools", h.ListTools)
	router.POST("/api/v1/checkout", h.Checkout)
	router.POST("/api/v1/return", h.Return)
}
