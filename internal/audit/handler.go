package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/platform/httpx"
)

// Handler exposes the operator-facing audit trail endpoints. Access is
// limited to admins and managers.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.list)
	r.Get("/audit/stats", h.stats)
}

type entryDTO struct {
	ID         int64     `json:"id"`
	ActorID    int64     `json:"actorId"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	OldValue   string    `json:"oldValue,omitempty"`
	NewValue   string    `json:"newValue,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	At         time.Time `json:"at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list audit trail", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	entries := make([]entryDTO, 0, len(result.Entries))
	for _, e := range result.Entries {
		entries = append(entries, entryDTO{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			IP:         e.IP,
			UserAgent:  e.UserAgent,
			At:         e.At,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"page":     result.Page,
		"pageSize": result.PageSize,
		"hasNext":  result.HasNext,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("load audit stats", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	actions := make([]map[string]any, 0, len(stats.TopActions))
	for _, b := range stats.TopActions {
		actions = append(actions, map[string]any{"label": b.Label, "count": b.Count})
	}
	targets := make([]map[string]any, 0, len(stats.TopTargets))
	for _, b := range stats.TopTargets {
		targets = append(targets, map[string]any{"label": b.Label, "count": b.Count})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"today":      stats.Today,
		"thisWeek":   stats.ThisWeek,
		"thisMonth":  stats.ThisMonth,
		"total":      stats.Total,
		"topActions": actions,
		"topTargets": targets,
	})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return false
	}
	if actor.Role != identity.RoleAdmin && actor.Role != identity.RoleManager {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "admin or manager role required")
		return false
	}
	return true
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	var f Filter

	if v := q.Get("actorId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, strconv.ErrSyntax
		}
		f.ActorID = id
	}
	f.Action = q.Get("action")
	f.EntityType = q.Get("entityType")

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.To = t
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.Page = page
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return f, err
		}
		f.PageSize = size
	}
	return f, nil
}
