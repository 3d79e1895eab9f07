package frontend

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

type User struct {
	Name  string
	Email string
}

type TodoItem struct {
	ID              int64
	Text            string
	DurationHours   int
	DurationMinutes int
	Completed       bool
	FocusedTime     int64
	WasOverdue      bool
	OverdueTime     int64
}

// DurationLabel renders the planned duration as "1h 30m"; empty when zero.
func (t TodoItem) DurationLabel() string {
	var parts []string
	if t.DurationHours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", t.DurationHours))
	}
	if t.DurationMinutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", t.DurationMinutes))
	}
	return strings.Join(parts, " ")
}

// FocusLabel renders focused seconds as minutes, with the overrun when overdue.
func (t TodoItem) FocusLabel() string {
	if t.FocusedTime <= 0 {
		return ""
	}
	label := fmt.Sprintf("focused %dm", t.FocusedTime/60)
	if t.WasOverdue {
		label += fmt.Sprintf(" (+%dm over)", t.OverdueTime/60)
	}
	return label
}

func LandingPage() templ.Component {
	return layout("Focus Todo", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<main class="landing">
<h1>Focus Todo</h1>
<p>Plan tasks, time-box them, and track how long you actually focused.</p>
<a class="button" href="/login">Sign in</a>
</main>`)
		return err
	}))
}

func IndexPage(user User, items []TodoItem) templ.Component {
	return layout("Focus Todo", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		name := user.Name
		if name == "" {
			name = user.Email
		}
		if _, err := fmt.Fprintf(w, `<header class="topbar"><span class="who">%s</span><a href="/logout">Log out</a></header>
<main class="todo-container">
<div class="todo-form">
<input id="todo-input" type="text" placeholder="What needs doing?" autocomplete="off">
<input id="duration-hours" type="number" min="0" placeholder="h">
<input id="duration-minutes" type="number" min="0" max="59" placeholder="m">
<button id="add-button">Add</button>
</div>
`, templ.EscapeString(name)); err != nil {
			return err
		}

		var open, done []TodoItem
		for _, item := range items {
			if item.Completed {
				done = append(done, item)
			} else {
				open = append(open, item)
			}
		}
		if err := todoList(w, "todo-list", open); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "<h2>Completed</h2>\n"); err != nil {
			return err
		}
		if err := todoList(w, "completed-list", done); err != nil {
			return err
		}
		_, err := io.WriteString(w, focusPanel)
		return err
	}))
}

func todoList(w io.Writer, id string, items []TodoItem) error {
	if _, err := fmt.Fprintf(w, `<ul id="%s">`+"\n", id); err != nil {
		return err
	}
	for _, item := range items {
		var classes []string
		icon := "fa-check"
		if item.Completed {
			classes = append(classes, "completed")
			icon = "fa-undo"
		}
		if item.WasOverdue {
			classes = append(classes, "overdue")
		}
		class := ""
		if len(classes) > 0 {
			class = ` class="` + strings.Join(classes, " ") + `"`
		}
		if _, err := fmt.Fprintf(w,
			`<li%s data-id="%d" data-duration-hours="%d" data-duration-minutes="%d" data-focused-time="%d">`+
				`<span>%s</span><div class="actions"><span class="duration">%s</span><span class="focus">%s</span>`+
				`<button class="play-button" title="Focus"><i class="fas fa-play"></i></button>`+
				`<button class="done-button" title="Done"><i class="fas %s"></i></button>`+
				`<button class="delete-button" title="Delete"><i class="fas fa-trash"></i></button></div></li>`+"\n",
			class, item.ID, item.DurationHours, item.DurationMinutes, item.FocusedTime,
			templ.EscapeString(item.Text), item.DurationLabel(), item.FocusLabel(), icon,
		); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "</ul>\n")
	return err
}

const focusPanel = `</main>
<section class="pomodoro-container" hidden>
<h2 id="pomodoro-task"></h2>
<div class="pomodoro-inputs">
<input id="focus-duration" type="number" min="1" placeholder="focus min">
<input id="break-duration" type="number" min="1" placeholder="break min">
<input id="cycle-count" type="number" min="1" placeholder="cycles">
</div>
<div class="pomodoro-timer">25:00</div>
<div id="pomodoro-session-display"></div>
<button id="pomodoro-start-pause">Start</button>
<button id="pomodoro-stop">Stop</button>
<div id="pomodoro-notification" hidden></div>
</section>
`

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<link rel="stylesheet" href="https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.5.1/css/all.min.css">
<link rel="stylesheet" href="/static/styles.css">
</head>
<body>
`, templ.EscapeString(title)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `<script src="/static/script.js"></script>
</body>
</html>
`)
		return err
	})
}
