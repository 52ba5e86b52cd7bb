package notify

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/platform/httpx"
)

// Handler exposes notification endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	settings *SettingsRepository
	cache    *SettingsCache
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, settings *SettingsRepository, cache *SettingsCache) *Handler {
	return &Handler{logger: logger, service: service, settings: settings, cache: cache}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Post("/read-all", h.markAllRead)
	r.Post("/{id}/read", h.markRead)
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.updateSettings)
}

type notificationDTO struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	RefType   string    `json:"refType,omitempty"`
	RefID     string    `json:"refId,omitempty"`
	Silent    bool      `json:"silent"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func toNotificationDTO(n Notification) notificationDTO {
	return notificationDTO{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		RefType:   n.RefType,
		RefID:     n.RefID,
		Silent:    n.Silent,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "page must be a positive integer")
			return
		}
		page = parsed
	}

	notifications, err := h.service.List(r.Context(), actor.ID, page)
	if err != nil {
		h.logger.Error("list notifications", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	dtos := make([]notificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, toNotificationDTO(n))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": dtos, "page": page})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}

	count, err := h.service.CountUnread(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("count unread notifications", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "notification id must be a UUID")
		return
	}

	if err := h.service.MarkRead(r.Context(), id, actor.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("mark notification read", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}

	if err := h.service.MarkAllRead(r.Context(), actor.ID); err != nil {
		h.logger.Error("mark all notifications read", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	settings, err := h.settings.Load(r.Context())
	if err != nil {
		h.logger.Error("load notification settings", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var settings Settings
	if err := httpx.DecodeJSON(r, &settings); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	for role := range settings.RoleSoundOverrides {
		if !role.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role "+string(role))
			return
		}
	}

	if err := h.settings.Save(r.Context(), settings); err != nil {
		h.logger.Error("save notification settings", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			h.logger.Warn("invalidate settings cache", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return false
	}
	if actor.Role != identity.RoleAdmin {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin role required")
		return false
	}
	return true
}
