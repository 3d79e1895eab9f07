package frontend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func render(t *testing.T, c interface {
	Render(context.Context, io.Writer) error
}) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render error: %v", err)
	}
	return buf.String()
}

func TestIndexPageSplitsListsAndEscapes(t *testing.T) {
	html := render(t, IndexPage(User{Name: "Alice"}, []TodoItem{
		{ID: 1, Text: "<b>ship</b>", DurationHours: 1, DurationMinutes: 30},
		{ID: 2, Text: "done thing", Completed: true, FocusedTime: 4000, WasOverdue: true, OverdueTime: 400, DurationHours: 1},
	}))

	if strings.Contains(html, "<b>ship</b>") {
		t.Fatal("todo text was not escaped")
	}
	if !strings.Contains(html, "&lt;b&gt;ship&lt;/b&gt;") {
		t.Fatal("escaped todo text missing")
	}

	open := html[strings.Index(html, `id="todo-list"`):strings.Index(html, `id="completed-list"`)]
	if !strings.Contains(open, `data-id="1"`) || strings.Contains(open, `data-id="2"`) {
		t.Fatalf("open list has wrong items:\n%s", open)
	}
	done := html[strings.Index(html, `id="completed-list"`):]
	if !strings.Contains(done, `<li class="completed overdue" data-id="2"`) {
		t.Fatalf("completed item not rendered as completed and overdue:\n%s", done)
	}
	if !strings.Contains(done, "focused 66m (+6m over)") {
		t.Fatalf("focus label missing:\n%s", done)
	}
	if !strings.Contains(html, "1h 30m") {
		t.Fatal("duration label missing")
	}
}

func TestLandingPageLinksToLogin(t *testing.T) {
	if html := render(t, LandingPage()); !strings.Contains(html, `href="/login"`) {
		t.Fatalf("landing page has no login link:\n%s", html)
	}
}

func TestDurationLabel(t *testing.T) {
	tests := []struct {
		h, m int
		want string
	}{
		{0, 0, ""},
		{2, 0, "2h"},
		{0, 45, "45m"},
		{1, 5, "1h 5m"},
	}
	for _, tt := range tests {
		if got := (TodoItem{DurationHours: tt.h, DurationMinutes: tt.m}).DurationLabel(); got != tt.want {
			t.Fatalf("DurationLabel(%d, %d) = %q, want %q", tt.h, tt.m, got, tt.want)
		}
	}
}

func TestStaticHandlerServesAssets(t *testing.T) {
	h := http.StripPrefix("/static/", StaticHandler())
	for _, path := range []string{"/static/script.js", "/static/styles.css"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
	}
}
