package metrics

// Todo groups the collectors reported by the todo services.
type Todo struct {
	Ops              *CounterVec
	FocusCorrections *CounterVec
	HTTPRequests     *CounterVec
	InFlight         *Gauge
	SweepFixed       *Gauge
}

func NewTodo(r *Registry) *Todo {
	m := &Todo{
		Ops: NewCounterVec(Opts{
			Name: "focus_todo_operations_total",
			Help: "Todo operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		FocusCorrections: NewCounterVec(Opts{
			Name: "focus_todo_focus_corrections_total",
			Help: "Focused-time reports that needed normalization, by correction.",
		}, []string{"correction"}),
		HTTPRequests: NewCounterVec(Opts{
			Name: "focus_todo_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		InFlight: NewGauge(Opts{
			Name: "focus_todo_http_in_flight",
			Help: "Requests currently being served.",
		}),
		SweepFixed: NewGauge(Opts{
			Name: "focus_todo_sweep_fixed",
			Help: "Rows repaired by the most recent maintenance sweep.",
		}),
	}
	r.MustRegister(m.Ops, m.FocusCorrections, m.HTTPRequests, m.InFlight, m.SweepFixed)
	return m
}

// Observe records one operation outcome. A nil receiver is a no-op.
func (m *Todo) Observe(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Ops.WithLabelValues(op, outcome).Inc()
}
