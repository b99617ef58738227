// Package httpapi exposes the widget service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"widgetcore/internal/core"
	"widgetcore/pkg/domain"
)

// WidgetService is the subset of core.Service used by the handler.
type WidgetService interface {
	Get(ctx context.Context, id int64) (domain.Widget, error)
	Create(ctx context.Context, draft domain.WidgetDraft) (domain.Widget, error)
	Update(ctx context.Context, id int64, draft domain.WidgetDraft) (domain.Widget, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, req core.ListRequest) (domain.Page, error)
}

// Handler provides HTTP access to widgets.
type Handler struct {
	Service WidgetService
	Logger  *log.Logger
	// Metrics is mounted at /metrics and Vars at /debug/vars when set.
	Metrics http.Handler
	Vars    http.Handler
}

// NewHandler constructs a widget HTTP handler. A nil logger discards output.
func NewHandler(svc WidgetService, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Handler{Service: svc, Logger: logger}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/widget", func(r chi.Router) {
		r.Get("/", h.listWidgets)
		r.Post("/", h.createWidget)
		r.Get("/{id}", h.getWidget)
		r.Put("/{id}", h.updateWidget)
		r.Delete("/{id}", h.deleteWidget)
	})
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	if h.Vars != nil {
		r.Method(http.MethodGet, "/debug/vars", h.Vars)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type identifierResponse struct {
	ID int64 `json:"id"`
}

func (h *Handler) getWidget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.widgetID(w, r)
	if !ok {
		return
	}
	widget, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (h *Handler) createWidget(w http.ResponseWriter, r *http.Request) {
	var req widgetRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	draft, err := req.creation()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	widget, err := h.Service.Create(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identifierResponse{ID: widget.ID})
}

func (h *Handler) updateWidget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.widgetID(w, r)
	if !ok {
		return
	}
	var req widgetRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	draft, err := req.update()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	widget, err := h.Service.Update(r.Context(), id, draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (h *Handler) deleteWidget(w http.ResponseWriter, r *http.Request) {
	id, ok := h.widgetID(w, r)
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) listWidgets(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.Service.List(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if page.Content == nil {
		page.Content = []domain.Widget{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) widgetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		var verrs domain.ValidationErrors
		verrs.Add("id", "must be an integer, got "+strconv.Quote(raw))
		h.fail(w, r, verrs)
		return 0, false
	}
	return id, true
}

type errorResponse struct {
	Error  string                   `json:"error"`
	Fields []domain.ValidationError `json:"fields,omitempty"`
}

// fail maps service errors onto status codes. Internal detail is logged and
// never written to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.Logger.With("request_id", core.RequestIDFromContext(r.Context()), "method", r.Method, "path", r.URL.Path)
	switch {
	case domain.IsNotFound(err):
		logger.Info("widget not found", "err", err)
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsValidation(err):
		logger.Info("rejected request", "err", err)
		resp := errorResponse{Error: err.Error()}
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			resp.Fields = verrs
		}
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
