// Package metrics is a small Prometheus text-format registry. It covers the
// handful of collector kinds the focus-todo binaries export.
package metrics

import (
	"bufio"
	"io"
	"math"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type Opts struct {
	Name string
	Help string
}

type collector interface {
	describe() (name, kind, help string)
	samples(emit func(labels string, value float64))
}

type Registry struct {
	mu     sync.RWMutex
	byName map[string]collector
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]collector)}
}

// MustRegister panics when a collector name is already taken.
func (r *Registry) MustRegister(items ...collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		name, _, _ := item.describe()
		if _, taken := r.byName[name]; taken {
			panic("metrics: collector already registered: " + name)
		}
		r.byName[name] = item
	}
}

// WriteTo renders every collector in name order.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	snapshot := make([]collector, len(names))
	for i, name := range names {
		snapshot[i] = r.byName[name]
	}
	r.mu.RUnlock()

	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, c := range snapshot {
		name, kind, help := c.describe()
		cw.write("# HELP ", name, " ", help, "\n")
		cw.write("# TYPE ", name, " ", kind, "\n")
		c.samples(func(labels string, value float64) {
			cw.write(name, labels, " ", strconv.FormatFloat(value, 'f', -1, 64), "\n")
		})
	}
	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = r.WriteTo(w)
	})
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) write(parts ...string) {
	for _, p := range parts {
		if c.err != nil {
			return
		}
		n, err := c.w.WriteString(p)
		c.n += int64(n)
		c.err = err
	}
}

// atomicFloat stores a float64 as its IEEE bits so updates need no lock.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) load() float64 { return math.Float64frombits(f.bits.Load()) }

func (f *atomicFloat) store(v float64) { f.bits.Store(math.Float64bits(v)) }

func (f *atomicFloat) add(delta float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

type Gauge struct {
	opts Opts
	v    atomicFloat
}

func NewGauge(opts Opts) *Gauge {
	return &Gauge{opts: opts}
}

func (g *Gauge) Set(v float64) { g.v.store(v) }
func (g *Gauge) Add(v float64) { g.v.add(v) }
func (g *Gauge) Inc() { g.v.add(1) }
func (g *Gauge) Dec() { g.v.add(-1) }
func (g *Gauge) Value() float64 { return g.v.load() }

func (g *Gauge) describe() (string, string, string) { return g.opts.Name, "gauge", g.opts.Help }

func (g *Gauge) samples(emit func(string, float64)) { emit("", g.v.load()) }

// GaugeFunc reports whatever fn returns at scrape time.
type GaugeFunc struct {
	opts Opts
	fn   func() float64
}

func NewGaugeFunc(opts Opts, fn func() float64) *GaugeFunc {
	return &GaugeFunc{opts: opts, fn: fn}
}

func (g *GaugeFunc) describe() (string, string, string) { return g.opts.Name, "gauge", g.opts.Help }

func (g *GaugeFunc) samples(emit func(string, float64)) {
	var v float64
	if g.fn != nil {
		v = g.fn()
	}
	emit("", v)
}

type series struct {
	labels string
	v      atomicFloat
}

// CounterVec is a counter partitioned by a fixed set of label names.
type CounterVec struct {
	opts       Opts
	labelNames []string

	mu     sync.RWMutex
	series map[string]*series
}

func NewCounterVec(opts Opts, labelNames []string) *CounterVec {
	return &CounterVec{
		opts:       opts,
		labelNames: append([]string(nil), labelNames...),
		series:     make(map[string]*series),
	}
}

// WithLabelValues returns the counter for one label combination, creating it
// on first use. A wrong number of values yields a counter that ignores writes.
func (c *CounterVec) WithLabelValues(values ...string) *Counter {
	if len(values) != len(c.labelNames) {
		return nil
	}
	key := strings.Join(values, "\xff")

	c.mu.RLock()
	s, ok := c.series[key]
	c.mu.RUnlock()
	if ok {
		return &Counter{s: s}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.series[key]; !ok {
		s = &series{labels: formatLabels(c.labelNames, values)}
		c.series[key] = s
	}
	return &Counter{s: s}
}

func (c *CounterVec) describe() (string, string, string) {
	return c.opts.Name, "counter", c.opts.Help
}

func (c *CounterVec) samples(emit func(string, float64)) {
	c.mu.RLock()
	list := make([]*series, 0, len(c.series))
	for _, s := range c.series {
		list = append(list, s)
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].labels < list[j].labels })
	for _, s := range list {
		emit(s.labels, s.v.load())
	}
}

// Counter is one series of a CounterVec. Nil counters are no-ops.
type Counter struct {
	s *series
}

// Add ignores negative deltas; counters only go up.
func (c *Counter) Add(v float64) {
	if c == nil || v < 0 {
		return
	}
	c.s.v.add(v)
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	return c.s.v.load()
}

func formatLabels(names, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(name)
		sb.WriteString(`="`)
		sb.WriteString(labelEscaper.Replace(values[i]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, `"`, `\"`)

// RegisterRuntime adds process level gauges to r.
func RegisterRuntime(r *Registry) {
	start := time.Now()
	r.MustRegister(
		NewGaugeFunc(Opts{
			Name: "process_uptime_seconds",
			Help: "Seconds since process start.",
		}, func() float64 {
			return time.Since(start).Seconds()
		}),
		NewGaugeFunc(Opts{
			Name: "go_goroutines",
			Help: "Number of goroutines.",
		}, func() float64 {
			return float64(runtime.NumGoroutine())
		}),
		NewGaugeFunc(Opts{
			Name: "go_memstats_heap_inuse_bytes",
			Help: "Heap in-use bytes.",
		}, func() float64 {
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			return float64(mem.HeapInuse)
		}),
	)
}
