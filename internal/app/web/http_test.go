package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/focus-todo/project/internal/app/todos"
	platformauth "github.com/focus-todo/project/internal/platform/auth"
	"github.com/focus-todo/project/internal/platform/logging"
	"github.com/focus-todo/project/internal/platform/metrics"
	"github.com/focus-todo/project/internal/platform/oidc"
)

type fakeProvider struct {
	identity oidc.Identity
	err      error
	gotCode  string
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/auth?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (oidc.Identity, error) {
	f.gotCode = code
	return f.identity, f.err
}

type testEnv struct {
	handler  *Handler
	router   http.Handler
	provider *fakeProvider
	repo     *todos.SQLiteRepository
	metrics  *metrics.Todo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := todos.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}

	logger := logging.Discard()
	svc := todos.NewService(repo, nil, logger)
	provider := &fakeProvider{identity: oidc.Identity{Subject: "google-123", Name: "Alice", Email: "alice@example.com"}}
	sessions := platformauth.NewManager([]byte("test-secret"), time.Hour, false)

	h, err := NewHandler(svc, sessions, provider, logger)
	if err != nil {
		t.Fatalf("NewHandler error: %v", err)
	}
	h.NewState = func() string { return "state-1" }
	reg := metrics.NewRegistry()
	h.Metrics = metrics.NewTodo(reg)
	h.Registry = reg

	return &testEnv{handler: h, router: h.Router(), provider: provider, repo: repo, metrics: h.Metrics}
}

func (e *testEnv) sessionCookie(t *testing.T, subject string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := e.handler.Sessions.SetSession(rec, platformauth.Claims{Subject: subject, Name: subject}); err != nil {
		t.Fatalf("SetSession error: %v", err)
	}
	return rec.Result().Cookies()[0]
}

func (e *testEnv) post(t *testing.T, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestJSONRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/add", "/delete", "/toggle", "/update_focus_time"} {
		rec := env.post(t, path, `{}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without session = %d, want 401", path, rec.Code)
		}
		if got := decodeBody(t, rec)["error"]; got != "Unauthorized" {
			t.Fatalf("%s error = %v", path, got)
		}
	}
}

func TestAddEchoesCreatedTodo(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.sessionCookie(t, "u1")

	rec := env.post(t, "/add", `{"text":"Write report","duration_hours":"1","duration_minutes":"30"}`, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["text"] != "Write report" || body["duration_hours"] != float64(1) || body["duration_minutes"] != float64(30) {
		t.Fatalf("unexpected echo: %v", body)
	}
	for _, key := range []string{"completed", "focused_time", "was_overdue", "overdue_time"} {
		if body[key] != float64(0) {
			t.Fatalf("%s = %v, want 0", key, body[key])
		}
	}
	if body["id"].(float64) < 1 {
		t.Fatalf("missing id: %v", body)
	}
	if got := env.metrics.HTTPRequests.WithLabelValues("/add", "201").Value(); got != 1 {
		t.Fatalf("http metric = %v, want 1", got)
	}
}

func TestAddValidation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.sessionCookie(t, "u1")

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"text":`},
		{"empty text", `{"text":"  ","duration_hours":1,"duration_minutes":0}`},
		{"missing durations", `{"text":"x"}`},
		{"empty duration string", `{"text":"x","duration_hours":"","duration_minutes":"10"}`},
		{"negative duration", `{"text":"x","duration_hours":-1,"duration_minutes":10}`},
		{"non numeric duration", `{"text":"x","duration_hours":"abc","duration_minutes":10}`},
		{"zero planned", `{"text":"x","duration_hours":0,"duration_minutes":0}`},
		{"hours above column range", `{"text":"x","duration_hours":5124095576030432,"duration_minutes":0}`},
		{"minutes string above column range", `{"text":"x","duration_hours":0,"duration_minutes":"9999999999"}`},
		{"overlong duration string", `{"text":"x","duration_hours":"51240955760304320","duration_minutes":0}`},
		{"text not a string", `{"text":5,"duration_hours":1,"duration_minutes":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post(t, "/add", tt.body, cookie)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			if msg, _ := decodeBody(t, rec)["error"].(string); msg == "" {
				t.Fatal("empty error message")
			}
		})
	}

	list, err := env.repo.ListByOwner(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("invalid requests stored todos: %+v", list)
	}
}

func createTodo(t *testing.T, env *testEnv, cookie *http.Cookie, hours, minutes int) int64 {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"text": "task", "duration_hours": hours, "duration_minutes": minutes})
	rec := env.post(t, "/add", string(body), cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add = %d: %s", rec.Code, rec.Body.String())
	}
	return int64(decodeBody(t, rec)["id"].(float64))
}

func TestUpdateFocusTimeScenarios(t *testing.T) {
	tests := []struct {
		name        string
		focused     string
		wantFocused float64
		wantOverdue float64
		wantWas     float64
	}{
		{"under plan", `1800`, 1800, 0, 0},
		{"overrun", `4000`, 4000, 400, 1},
		{"milliseconds", `5000000`, 5000, 1400, 1},
		{"clamped", `90000`, 86400, 82800, 1},
		{"negative", `-5`, 0, 0, 0},
		{"numeric string", `"3700"`, 3700, 100, 1},
		{"garbage", `"abc"`, 0, 0, 0},
		{"null", `null`, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			cookie := env.sessionCookie(t, "u1")
			id := createTodo(t, env, cookie, 1, 0)

			rec := env.post(t, "/update_focus_time", `{"id":"`+itoa(id)+`","focused_time":`+tt.focused+`}`, cookie)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if body["result"] != "success" || body["focused_time"] != tt.wantFocused || body["overdue_time"] != tt.wantOverdue || body["was_overdue"] != tt.wantWas {
				t.Fatalf("unexpected body: %v", body)
			}

			stored, err := env.repo.Get(context.Background(), id, "u1")
			if err != nil {
				t.Fatalf("Get error: %v", err)
			}
			if float64(stored.FocusedTime) != tt.wantFocused || stored.WasOverdue != (tt.wantWas == 1) {
				t.Fatalf("stored row mismatch: %+v", stored)
			}
		})
	}
}

func TestUpdateFocusTimeForeignOrMissing(t *testing.T) {
	env := newTestEnv(t)
	owner := env.sessionCookie(t, "u1")
	other := env.sessionCookie(t, "u2")
	id := createTodo(t, env, owner, 1, 0)

	rec := env.post(t, "/update_focus_time", `{"id":`+itoa(id)+`,"focused_time":100}`, other)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign update = %d, want 404", rec.Code)
	}
	rec = env.post(t, "/update_focus_time", `{"id":9999,"focused_time":100}`, owner)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing update = %d, want 404", rec.Code)
	}
	rec = env.post(t, "/update_focus_time", `{"focused_time":100}`, owner)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("update without id = %d, want 400", rec.Code)
	}

	stored, _ := env.repo.Get(context.Background(), id, "u1")
	if stored.FocusedTime != 0 {
		t.Fatalf("foreign update leaked: %+v", stored)
	}
}

func TestToggleAndDelete(t *testing.T) {
	env := newTestEnv(t)
	owner := env.sessionCookie(t, "u1")
	other := env.sessionCookie(t, "u2")
	id := createTodo(t, env, owner, 0, 25)
	ctx := context.Background()

	rec := env.post(t, "/toggle", `{"id":"`+itoa(id)+`"}`, owner)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["result"] != "success" {
		t.Fatalf("toggle = %d: %s", rec.Code, rec.Body.String())
	}
	stored, _ := env.repo.Get(ctx, id, "u1")
	if !stored.Completed {
		t.Fatal("toggle did not complete the todo")
	}

	// Foreign toggle and delete report success but change nothing.
	if rec := env.post(t, "/toggle", `{"id":`+itoa(id)+`}`, other); rec.Code != http.StatusOK {
		t.Fatalf("foreign toggle = %d", rec.Code)
	}
	if rec := env.post(t, "/delete", `{"id":`+itoa(id)+`}`, other); rec.Code != http.StatusOK {
		t.Fatalf("foreign delete = %d", rec.Code)
	}
	stored, err := env.repo.Get(ctx, id, "u1")
	if err != nil || !stored.Completed {
		t.Fatalf("foreign request changed the row: %+v, %v", stored, err)
	}

	if rec := env.post(t, "/delete", `{"id":`+itoa(id)+`}`, owner); rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}
	if _, err := env.repo.Get(ctx, id, "u1"); !errors.Is(err, todos.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if rec := env.post(t, "/delete", `{}`, owner); rec.Code != http.StatusBadRequest {
		t.Fatalf("delete without id = %d, want 400", rec.Code)
	}
	if rec := env.post(t, "/toggle", `{"id":"x"}`, owner); rec.Code != http.StatusBadRequest {
		t.Fatalf("toggle with bad id = %d, want 400", rec.Code)
	}
}

func TestLoginRedirectsWithState(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("login = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "state=state-1") {
		t.Fatalf("unexpected redirect %q", loc)
	}
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == platformauth.StateCookie && c.Value == "state-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("state cookie not set")
	}
}

func authorizeRequest(query, state string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+query, nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: platformauth.StateCookie, Value: state})
	}
	return req
}

func TestAuthorizeEstablishesSession(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authorizeRequest("code=abc&state=state-1", "state-1"))

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("authorize = %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	if env.provider.gotCode != "abc" {
		t.Fatalf("provider got code %q", env.provider.gotCode)
	}

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == platformauth.SessionCookie {
			session = c
		}
	}
	if session == nil {
		t.Fatal("session cookie not set")
	}
	claims, err := env.handler.Sessions.Parse(session.Value)
	if err != nil || claims.Subject != "google-123" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected session claims %+v, %v", claims, err)
	}
}

func TestAuthorizeFailures(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, authorizeRequest("code=abc&state=forged", "state-1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("state mismatch = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, authorizeRequest("code=abc&state=state-1", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing state cookie = %d, want 400", rec.Code)
	}

	env.provider.err = errors.New("token endpoint said no: secret details")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, authorizeRequest("code=abc&state=state-1", "state-1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("provider failure = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret details") {
		t.Fatal("provider error leaked to the client")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(env.sessionCookie(t, "u1"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("logout = %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != platformauth.SessionCookie || cookies[0].MaxAge >= 0 {
		t.Fatalf("session cookie not cleared: %+v", cookies)
	}
}

func TestIndexRendersLandingOrList(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `href="/login"`) {
		t.Fatalf("anonymous index = %d: %s", rec.Code, rec.Body.String())
	}

	cookie := env.sessionCookie(t, "u1")
	env.post(t, "/add", `{"text":"Mine","duration_hours":1,"duration_minutes":0}`, cookie)
	otherCookie := env.sessionCookie(t, "u2")
	env.post(t, "/add", `{"text":"Theirs","duration_hours":1,"duration_minutes":0}`, otherCookie)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	body := rec.Body.String()
	if !strings.Contains(body, "Mine") || strings.Contains(body, "Theirs") {
		t.Fatalf("index not owner scoped:\n%s", body)
	}
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	env.handler.Ready = func(context.Context) error { return errors.New("db down") }
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rec.Code)
	}

	env.handler.Ready = func(ctx context.Context) error { return env.repo.Ping(ctx) }
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "focus_todo_http_requests_total") {
		t.Fatalf("metrics missing request counter:\n%s", rec.Body.String())
	}
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
