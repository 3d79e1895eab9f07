// Package web serves the todo pages and JSON endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/charmbracelet/log"
	"github.com/focus-todo/project/internal/app/todos"
	"github.com/focus-todo/project/internal/focus"
	platformauth "github.com/focus-todo/project/internal/platform/auth"
	"github.com/focus-todo/project/internal/platform/metrics"
	"github.com/focus-todo/project/internal/platform/oidc"
	"github.com/focus-todo/project/services/frontend"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (oidc.Identity, error)
}

type Handler struct {
	Todos    *todos.Service
	Sessions platformauth.Manager
	Provider IdentityProvider
	Logger   *log.Logger
	Metrics  *metrics.Todo
	Registry *metrics.Registry

	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready    func(ctx context.Context) error
	NewState func() string

	schemas schemas
}

func NewHandler(service *todos.Service, sessions platformauth.Manager, provider IdentityProvider, logger *log.Logger) (*Handler, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		Todos:    service,
		Sessions: sessions,
		Provider: provider,
		Logger:   logger,
		NewState: uuid.NewString,
		schemas:  s,
	}, nil
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.handleReady)
	if h.Registry != nil {
		r.Handle("/metrics", h.Registry.Handler())
	}
	r.Handle("/static/*", http.StripPrefix("/static/", frontend.StaticHandler()))

	r.Get("/", h.handleIndex)
	r.Get("/login", h.handleLogin)
	r.Get("/authorize", h.handleAuthorize)
	r.Get("/logout", h.handleLogout)

	r.Group(func(authR chi.Router) {
		authR.Use(h.authMiddleware)
		authR.Post("/add", h.handleAdd)
		authR.Post("/delete", h.handleDelete)
		authR.Post("/toggle", h.handleToggle)
		authR.Post("/update_focus_time", h.handleUpdateFocusTime)
	})

	return r
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			h.Logger.Warn("readiness check failed", "err", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Sessions.Session(r)
	if err != nil {
		templ.Handler(frontend.LandingPage()).ServeHTTP(w, r)
		return
	}

	list, err := h.Todos.List(r.Context(), claims.Subject)
	if err != nil {
		h.Logger.Error("list todos", "owner", claims.Subject, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	items := make([]frontend.TodoItem, 0, len(list))
	for _, t := range list {
		items = append(items, frontend.TodoItem{
			ID:              t.ID,
			Text:            t.Text,
			DurationHours:   t.DurationHours,
			DurationMinutes: t.DurationMinutes,
			Completed:       t.Completed,
			FocusedTime:     t.FocusedTime,
			WasOverdue:      t.WasOverdue,
			OverdueTime:     t.OverdueTime,
		})
	}
	user := frontend.User{Name: claims.Name, Email: claims.Email}
	templ.Handler(frontend.IndexPage(user, items)).ServeHTTP(w, r)
}

type addTodoResponse struct {
	ID              int64  `json:"id"`
	Text            string `json:"text"`
	Completed       int    `json:"completed"`
	DurationHours   int    `json:"duration_hours"`
	DurationMinutes int    `json:"duration_minutes"`
	FocusedTime     int64  `json:"focused_time"`
	WasOverdue      int    `json:"was_overdue"`
	OverdueTime     int64  `json:"overdue_time"`
}

type focusTimeResponse struct {
	Result      string `json:"result"`
	WasOverdue  int    `json:"was_overdue"`
	OverdueTime int64  `json:"overdue_time"`
	FocusedTime int64  `json:"focused_time"`
}

var successResponse = map[string]string{"result": "success"}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addTodoRequest
	if err := decodeValid(r.Body, h.schemas.addTodo, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims := claimsFromContext(r.Context())
	todo, err := h.Todos.Create(r.Context(), claims.Subject, todos.CreateInput{
		Text:            req.Text,
		DurationHours:   req.DurationHours.IntPtr(),
		DurationMinutes: req.DurationMinutes.IntPtr(),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, addTodoResponse{
		ID:              todo.ID,
		Text:            todo.Text,
		Completed:       boolInt(todo.Completed),
		DurationHours:   todo.DurationHours,
		DurationMinutes: todo.DurationMinutes,
		FocusedTime:     todo.FocusedTime,
		WasOverdue:      boolInt(todo.WasOverdue),
		OverdueTime:     todo.OverdueTime,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req todoIDRequest
	if err := decodeValid(r.Body, h.schemas.todoID, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	claims := claimsFromContext(r.Context())
	if err := h.Todos.Delete(r.Context(), req.ID.Value, claims.Subject); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req todoIDRequest
	if err := decodeValid(r.Body, h.schemas.todoID, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	claims := claimsFromContext(r.Context())
	if err := h.Todos.Toggle(r.Context(), req.ID.Value, claims.Subject); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, successResponse)
}

func (h *Handler) handleUpdateFocusTime(w http.ResponseWriter, r *http.Request) {
	var req focusTimeRequest
	if err := decodeValid(r.Body, h.schemas.todoID, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	claims := claimsFromContext(r.Context())
	res, err := h.Todos.UpdateFocusTime(r.Context(), req.ID.Value, claims.Subject, req.FocusedTime)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, focusResponse(res))
}

func focusResponse(res focus.Result) focusTimeResponse {
	return focusTimeResponse{
		Result:      "success",
		WasOverdue:  boolInt(res.WasOverdue),
		OverdueTime: res.OverdueTime,
		FocusedTime: res.FocusedTime,
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, todos.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, todos.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "todo not found")
	default:
		h.Logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type claimsContextKey struct{}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.Sessions.Session(r)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if h.Metrics != nil {
			h.Metrics.InFlight.Inc()
			defer h.Metrics.InFlight.Dec()
		}

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if h.Metrics != nil {
			h.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		h.Logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func contextWithClaims(ctx context.Context, claims platformauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

func claimsFromContext(ctx context.Context) platformauth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(platformauth.Claims)
	return claims
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
