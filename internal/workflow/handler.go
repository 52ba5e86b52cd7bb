package workflow

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atelier-hq/atelier/internal/audit"
	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/observability"
	"github.com/atelier-hq/atelier/internal/platform/httpx"
)

// Handler exposes work item endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	items     *Repository
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, items *Repository, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		items:     items,
		metrics:   metrics,
		validator: validator.New(),
	}
}

// MountRoutes registers work item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.createItem)
	r.Post("/items/{id}/transition", h.transition)
	r.Get("/projects/{projectID}/items", h.listItems)
}

type createItemRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=TASK ASSET REVISION"`
	ProjectID  string `json:"projectId" validate:"required,uuid4"`
	Title      string `json:"title" validate:"required,max=200"`
	AssignedTo *int64 `json:"assignedTo"`
}

type transitionRequest struct {
	To          string   `json:"to" validate:"required"`
	Note        string   `json:"note" validate:"max=2000"`
	Attachments []string `json:"attachments" validate:"max=10"`
}

type itemDTO struct {
	ID               uuid.UUID `json:"id"`
	Kind             Kind      `json:"kind"`
	ProjectID        uuid.UUID `json:"projectId"`
	Status           Status    `json:"status"`
	AssignedTo       *int64    `json:"assignedTo,omitempty"`
	CreatedBy        int64     `json:"createdBy"`
	Title            string    `json:"title"`
	Note             string    `json:"note,omitempty"`
	Attachments      []string  `json:"attachments,omitempty"`
	LastTransitionAt time.Time `json:"lastTransitionAt"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toItemDTO(item WorkItem) itemDTO {
	return itemDTO{
		ID:               item.ID,
		Kind:             item.Kind,
		ProjectID:        item.ProjectID,
		Status:           item.Status,
		AssignedTo:       item.AssignedTo,
		CreatedBy:        item.CreatedBy,
		Title:            item.Title,
		Note:             item.Note,
		Attachments:      item.Attachments,
		LastTransitionAt: item.LastTransitionAt,
		CreatedAt:        item.CreatedAt,
	}
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}

	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "projectId must be a UUID")
		return
	}

	item, err := h.service.CreateWorkItem(r.Context(), actor.ID, Kind(req.Kind), projectID, req.Title, req.AssignedTo, requestMetadata(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItemDTO(item))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}

	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "item id must be a UUID")
		return
	}

	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	item, err := h.service.Transition(r.Context(), actor.ID, itemID, Status(req.To), Payload{
		Note:        req.Note,
		Attachments: req.Attachments,
	}, requestMetadata(r))
	h.observe(item.Kind, err)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemDTO(item))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity.ActorFromContext(r.Context()); !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}

	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "project id must be a UUID")
		return
	}

	kinds := []Kind{KindTask, KindAsset, KindRevision}
	if param := r.URL.Query().Get("kind"); param != "" {
		kind := Kind(param)
		if kind != KindTask && kind != KindAsset && kind != KindRevision {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "kind must be TASK, ASSET or REVISION")
			return
		}
		kinds = []Kind{kind}
	}

	var dtos []itemDTO
	for _, kind := range kinds {
		items, err := h.items.ListByProject(r.Context(), projectID, kind)
		if err != nil {
			h.respondError(w, err)
			return
		}
		for _, item := range items {
			dtos = append(dtos, toItemDTO(item))
		}
	}
	if dtos == nil {
		dtos = []itemDTO{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": dtos})
}

func (h *Handler) observe(kind Kind, err error) {
	if kind == "" {
		kind = "UNKNOWN"
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidTransition):
		result = "invalid"
	case errors.Is(err, ErrForbidden):
		result = "forbidden"
	case errors.Is(err, ErrConflict):
		result = "conflict"
	default:
		result = "error"
	}
	h.metrics.ObserveTransition(string(kind), result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("workflow request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func requestMetadata(r *http.Request) audit.Metadata {
	return audit.Metadata{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}
