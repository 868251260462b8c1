package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
)

// Admin is implemented by service.AdminService.
type Admin interface {
	Generate(ctx context.Context, duration, actor string) (*model.Key, error)
	Info(ctx context.Context, key string) (*service.KeyInfo, error)
	List(ctx context.Context, opts service.ListOptions) ([]service.KeyInfo, error)
	Count(ctx context.Context) (int64, error)
	Ban(ctx context.Context, key, actor string) (service.BanResult, error)
	RequestNuke(ctx context.Context, actor string) (*service.NukeTicket, error)
	ConfirmNuke(ctx context.Context, ticketID, actor string) (int64, error)
	CancelNuke(ctx context.Context, ticketID, actor string) error
	NukeStatus(ticketID string) (service.NukeTicket, error)
}

// AdminHandler serves the administrative key API. Every route runs behind
// middleware.Authenticate; the token subject is the acting operator.
type AdminHandler struct {
	admin  Admin
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin Admin, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{admin: admin, logger: logger}
}

func actorOf(r *http.Request) string {
	if p := middleware.GetPrincipal(r.Context()); p != nil {
		return p.Actor
	}
	return ""
}

// ListKeys returns keys newest first.
// GET /api/v1/admin/keys?limit=&offset=
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit := clampInt(queryInt(r, "limit", service.DefaultListLimit), 1, service.MaxListLimit)
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	keys, err := h.admin.List(r.Context(), service.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	total, err := h.admin.Count(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta: &model.ResponseMeta{
			Count:  len(keys),
			Total:  &total,
			Limit:  limit,
			Offset: offset,
			TookMs: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

type generateRequest struct {
	Duration string `json:"duration"`
}

// GenerateKey issues a new key.
// POST /api/v1/admin/keys {"duration":"day|week|lifetime"}
func (h *AdminHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	k, err := h.admin.Generate(r.Context(), req.Duration, actorOf(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

// GetKey returns one key with its display status.
// GET /api/v1/admin/keys/{key}
func (h *AdminHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	info, err := h.admin.Info(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// BanKey permanently deactivates a key.
// POST /api/v1/admin/keys/{key}/ban
func (h *AdminHandler) BanKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	res, err := h.admin.Ban(r.Context(), key, actorOf(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":    key,
		"result": res,
	})
}

// RequestNuke opens a nuke confirmation ticket.
// POST /api/v1/admin/nuke
func (h *AdminHandler) RequestNuke(w http.ResponseWriter, r *http.Request) {
	t, err := h.admin.RequestNuke(r.Context(), actorOf(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

// GetNuke reports the state of a nuke ticket.
// GET /api/v1/admin/nuke/{ticket}
func (h *AdminHandler) GetNuke(w http.ResponseWriter, r *http.Request) {
	t, err := h.admin.NukeStatus(chi.URLParam(r, "ticket"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ConfirmNuke deletes every key if the ticket is still pending.
// POST /api/v1/admin/nuke/{ticket}/confirm
func (h *AdminHandler) ConfirmNuke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticket")
	n, err := h.admin.ConfirmNuke(r.Context(), id, actorOf(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":  id,
		"state":   service.NukeConfirmed,
		"deleted": n,
	})
}

// CancelNuke abandons a pending ticket.
// DELETE /api/v1/admin/nuke/{ticket}
func (h *AdminHandler) CancelNuke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticket")
	if err := h.admin.CancelNuke(r.Context(), id, actorOf(r)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket": id,
		"state":  service.NukeCancelled,
	})
}
