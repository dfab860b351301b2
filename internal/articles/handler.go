package articles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/platform/httpx"
	"github.com/inms/inms/internal/shared"
)

// Handler exposes the article endpoints. Authorization is per decision
// inside the service rather than a blanket permission guard because the
// owner rules need the article snapshot.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers article routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Patch("/{id}/status", h.setStatus)
	r.Delete("/{id}", h.remove)
	r.Get("/{id}/history", h.history)
}

type createRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Excerpt string `json:"excerpt" validate:"max=1024"`
	Content string `json:"content" validate:"required"`
}

type updateRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Excerpt     string `json:"excerpt" validate:"max=1024"`
	Content     string `json:"content" validate:"required"`
	RefreshSlug bool   `json:"refresh_slug"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft review approved"`
	Note   string `json:"note" validate:"max=1024"`
}

type articlePayload struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     string     `json:"excerpt"`
	Content     string     `json:"content,omitempty"`
	Status      string     `json:"status"`
	UserID      int64      `json:"user_id"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CanEdit     bool       `json:"can_edit"`
	Transitions []string   `json:"transitions"`
}

func (h *Handler) toPayload(r *http.Request, p authz.Principal, a *Article, includeContent bool) articlePayload {
	engine := h.service.Engine()
	transitions := []string{}
	for _, target := range authz.Statuses() {
		if engine.CanTransition(r.Context(), p, a.State(), target) {
			transitions = append(transitions, string(target))
		}
	}
	payload := articlePayload{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Excerpt:     a.Excerpt,
		Status:      string(a.Status),
		UserID:      a.UserID,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		CanEdit:     engine.CanEdit(r.Context(), p, a.State()),
		Transitions: transitions,
	}
	if includeContent {
		payload.Content = a.Content
	}
	return payload
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	owner, _ := strconv.ParseInt(q.Get("owner_id"), 10, 64)
	filter := ListFilter{
		OwnerID: owner,
		Status:  q.Get("status"),
		Search:  q.Get("q"),
		Page:    page,
		PerPage: perPage,
	}

	arts, pagination, err := h.service.List(r.Context(), p, filter)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	payload := make([]articlePayload, len(arts))
	for i := range arts {
		payload[i] = h.toPayload(r, p, &arts[i], false)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": payload, "pagination": pagination})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !h.service.Engine().CanViewAll(r.Context(), p) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	counts, err := h.service.stats.Counts(r.Context())
	if err != nil {
		h.logger.Error("article stats", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": counts})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	article, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": h.toPayload(r, p, article, true)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	article, err := h.service.Create(r.Context(), p, CreateInput{
		Title:          req.Title,
		Excerpt:        req.Excerpt,
		Content:        req.Content,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": h.toPayload(r, p, article, true)})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	article, err := h.service.Update(r.Context(), p, id, UpdateInput{
		Title:       req.Title,
		Excerpt:     req.Excerpt,
		Content:     req.Content,
		RefreshSlug: req.RefreshSlug,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": h.toPayload(r, p, article, true)})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	article, err := h.service.SetStatus(r.Context(), p, id, authz.Status(req.Status), req.Note)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": h.toPayload(r, p, article, true)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, id); err != nil {
		h.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	p, id, ok := h.principalAndID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), p, id)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	type entryPayload struct {
		ActorID int64     `json:"actor_id"`
		Action  string    `json:"action"`
		From    string    `json:"from"`
		To      string    `json:"to"`
		Note    string    `json:"note,omitempty"`
		At      time.Time `json:"at"`
	}
	payload := make([]entryPayload, len(entries))
	for i, e := range entries {
		payload[i] = entryPayload{
			ActorID: e.ActorID,
			Action:  string(e.Action),
			From:    e.FromStatus,
			To:      e.ToStatus,
			Note:    e.Note,
			At:      e.At,
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": payload})
}

func (h *Handler) principalAndID(w http.ResponseWriter, r *http.Request) (authz.Principal, int64, bool) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return authz.Principal{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return authz.Principal{}, 0, false
	}
	return p, id, true
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDenied):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrStale):
		httpx.RespondError(w, httpx.ErrConflict)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "request already processed")
	case errors.Is(err, ErrDuplicateSlug):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "slug already exists")
	default:
		h.logger.Error("articles handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
