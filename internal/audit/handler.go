package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/inms/inms/internal/authz"
	"github.com/inms/inms/internal/platform/httpx"
	"github.com/inms/inms/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
	maxDateRange     = 90 * 24 * time.Hour
)

// Handler exposes the audit timeline. Routes require users.manage; the
// CSV export is additionally rate limited per user.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	exporter *Exporter
	guard    authz.Middleware
	now      func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		exporter: NewExporter(),
		guard:    guard,
		now:      time.Now,
	}
}

// MountRoutes registers the timeline and export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit reached")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersManage))
		r.Get("/", h.timeline)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/export.csv", h.export)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = []TimelineRow{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows, "paging": result.Paging})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	payload, err := h.exporter.WriteCSV(rows)
	if err != nil {
		h.logger.Error("audit export csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// parseFilters reads query parameters and clamps the date range.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	filters := TimelineFilters{
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}

	var err error
	if raw := q.Get("from"); raw != "" {
		filters.From, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return TimelineFilters{}, err
		}
	}
	if raw := q.Get("to"); raw != "" {
		filters.To, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return TimelineFilters{}, err
		}
		// Include the whole end day.
		filters.To = filters.To.Add(24*time.Hour - time.Second)
	}

	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Sub(filters.From) > maxDateRange {
		filters.From = filters.To.Add(-maxDateRange)
	}
	return filters, nil
}
