package handler

import (
	"encoding/json"
	"net/http"

	"keyring/internal/tools/service"
	httputil "keyring/pkg/http"
	"keyring/pkg/logger"
	"keyring/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// ToolHandler exposes the administrative catalog routes. The app mounts
// them behind the admin request-signature middleware.
type ToolHandler struct {
	service service.ToolService
	log     *logger.Logger
}

func NewToolHandler(service service.ToolService, log *logger.Logger) *ToolHandler {
	return &ToolHandler{
		service: service,
		log:     log,
	}
}

type createToolRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Username string `json:"username"`
	Password string `json:"password"`
	LoginURL string `json:"login_url"`
	IconURL  string `json:"icon_url"`
}

func (h *ToolHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "error", writeErr)
		}
		return
	}

	tool := &model.Tool{
		Name:     req.Name,
		Capacity: req.Capacity,
		LoginURL: req.LoginURL,
		IconURL:  req.IconURL,
	}
	creds := &model.Credentials{
		Username: req.Username,
		Password: req.Password,
	}

	created, err := h.service.Create(r.Context(), tool, creds)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, created); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "error", err)
	}
}

func (h *ToolHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "error", writeErr)
		}
		return
	}

	tools, total, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, tools, total, limit, int(offset)); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "error", err)
	}
}

func (h *ToolHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/admin/tools", h.Create)
	router.GET("/api/v1/admin/tools", h.GetAll)
}
