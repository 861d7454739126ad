package performance

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Operation names recorded by the streaming server.
const (
	OpStreamAdvance   = "chunk_stream_advance"
	OpStreamSubscribe = "stream_subscribe"
	OpGeometryEncode  = "geometry_encode"
)

// Counter names.
const (
	CounterChunksCreated = "chunks_created"
	CounterChunksEvicted = "chunks_evicted"
)

// Profiler records operation timings and event counters.
// A disabled profiler is a cheap no-op.
type Profiler struct {
	mu        sync.Mutex
	enabled   bool
	metrics   map[string]*Metric
	counters  map[string]int64
	startTime time.Time
}

// Metric holds timing statistics for one operation.
type Metric struct {
	Name      string
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	LastTime  time.Duration
	LastCall  time.Time
}

// Operation is an in-flight timing started by Start.
type Operation struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// NewProfiler creates a profiler.
func NewProfiler(enabled bool) *Profiler {
	return &Profiler{
		enabled:   enabled,
		metrics:   make(map[string]*Metric),
		counters:  make(map[string]int64),
		startTime: time.Now(),
	}
}

// Enabled reports whether recording is on.
func (p *Profiler) Enabled() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Start begins timing name. Returns nil when disabled; End on nil is a no-op.
func (p *Profiler) Start(name string) *Operation {
	if !p.Enabled() {
		return nil
	}
	return &Operation{profiler: p, name: name, start: time.Now()}
}

// End records the elapsed time.
func (o *Operation) End() {
	if o == nil {
		return
	}
	o.profiler.Record(o.name, time.Since(o.start))
}

// Record adds one timing sample.
func (p *Profiler) Record(name string, d time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}

	m, ok := p.metrics[name]
	if !ok {
		m = &Metric{Name: name, MinTime: d, MaxTime: d}
		p.metrics[name] = m
	}
	m.Count++
	m.TotalTime += d
	m.LastTime = d
	m.LastCall = time.Now()
	if d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// Add bumps counter name by n.
func (p *Profiler) Add(name string, n int64) {
	if p == nil || n == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	p.counters[name] += n
}

// Counter returns the current value of a counter.
func (p *Profiler) Counter(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters[name]
}

// GetMetric returns a copy of the metric, or nil if nothing was recorded.
func (p *Profiler) GetMetric(name string) *Metric {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.metrics[name]
	if !ok {
		return nil
	}
	copied := *m
	return &copied
}

// AverageTime returns the mean sample duration.
func (m *Metric) AverageTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// Report renders a plain-text table sorted by operation name.
func (p *Profiler) Report() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.metrics) == 0 && len(p.counters) == 0 {
		return "No performance metrics recorded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Stream Performance (since %s) ===\n", p.startTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "%-28s %10s %12s %12s %12s\n", "Operation", "Count", "Avg", "Min", "Max")
	for _, name := range sortedKeys(p.metrics) {
		m := p.metrics[name]
		fmt.Fprintf(&b, "%-28s %10d %12s %12s %12s\n",
			name, m.Count, m.AverageTime(), m.MinTime, m.MaxTime)
	}
	if len(p.counters) > 0 {
		fmt.Fprintf(&b, "\n%-28s %10s\n", "Counter", "Value")
		for _, name := range sortedKeys(p.counters) {
			fmt.Fprintf(&b, "%-28s %10d\n", name, p.counters[name])
		}
	}
	fmt.Fprintf(&b, "\nUptime: %s\n", time.Since(p.startTime).Round(time.Second))
	return b.String()
}

// LogReport writes Report to the standard logger.
func (p *Profiler) LogReport() {
	log.Print(p.Report())
}

type metricJSON struct {
	Count   int64   `json:"count"`
	TotalMS float64 `json:"total_ms"`
	AvgMS   float64 `json:"avg_ms"`
	MinMS   float64 `json:"min_ms"`
	MaxMS   float64 `json:"max_ms"`
	LastMS  float64 `json:"last_ms"`
}

type reportJSON struct {
	StartTime time.Time             `json:"start_time"`
	UptimeMS  float64               `json:"uptime_ms"`
	Metrics   map[string]metricJSON `json:"metrics"`
	Counters  map[string]int64      `json:"counters"`
}

// JSONReport renders the same data as JSON with millisecond values.
func (p *Profiler) JSONReport() ([]byte, error) {
	p.mu.Lock()
	report := reportJSON{
		StartTime: p.startTime,
		UptimeMS:  millis(time.Since(p.startTime)),
		Metrics:   make(map[string]metricJSON, len(p.metrics)),
		Counters:  make(map[string]int64, len(p.counters)),
	}
	for name, m := range p.metrics {
		report.Metrics[name] = metricJSON{
			Count:   m.Count,
			TotalMS: millis(m.TotalTime),
			AvgMS:   millis(m.AverageTime()),
			MinMS:   millis(m.MinTime),
			MaxMS:   millis(m.MaxTime),
			LastMS:  millis(m.LastTime),
		}
	}
	for name, v := range p.counters {
		report.Counters[name] = v
	}
	p.mu.Unlock()

	return json.MarshalIndent(report, "", "  ")
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
