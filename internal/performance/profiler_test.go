package performance

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestProfilerRecordsOperations(t *testing.T) {
	profiler := NewProfiler(true)

	profiler.Record(OpStreamAdvance, 4*time.Millisecond)
	profiler.Record(OpStreamAdvance, 2*time.Millisecond)
	profiler.Record(OpStreamAdvance, 6*time.Millisecond)

	metric := profiler.GetMetric(OpStreamAdvance)
	if metric == nil {
		t.Fatal("Metric not found")
	}
	if metric.Count != 3 {
		t.Errorf("Expected count 3, got %d", metric.Count)
	}
	if metric.MinTime != 2*time.Millisecond {
		t.Errorf("Expected min 2ms, got %v", metric.MinTime)
	}
	if metric.MaxTime != 6*time.Millisecond {
		t.Errorf("Expected max 6ms, got %v", metric.MaxTime)
	}
	if metric.LastTime != 6*time.Millisecond {
		t.Errorf("Expected last 6ms, got %v", metric.LastTime)
	}
	if metric.AverageTime() != 4*time.Millisecond {
		t.Errorf("Expected avg 4ms, got %v", metric.AverageTime())
	}
}

func TestProfilerStartEnd(t *testing.T) {
	profiler := NewProfiler(true)

	op := profiler.Start(OpStreamSubscribe)
	time.Sleep(2 * time.Millisecond)
	op.End()

	metric := profiler.GetMetric(OpStreamSubscribe)
	if metric == nil || metric.Count != 1 {
		t.Fatalf("Expected one recorded sample, got %+v", metric)
	}
	if metric.LastTime < 2*time.Millisecond {
		t.Errorf("Expected at least 2ms, got %v", metric.LastTime)
	}
}

func TestProfilerDisabled(t *testing.T) {
	profiler := NewProfiler(false)

	op := profiler.Start("test_operation")
	if op != nil {
		t.Error("Expected nil operation when profiler disabled")
	}
	op.End()

	profiler.Record("test", 10*time.Millisecond)
	profiler.Add(CounterChunksCreated, 3)
	if profiler.GetMetric("test") != nil {
		t.Error("Expected nil metric when profiler disabled")
	}
	if profiler.Counter(CounterChunksCreated) != 0 {
		t.Error("Expected counters to stay at zero when disabled")
	}
}

func TestProfilerNilIsSafe(t *testing.T) {
	var profiler *Profiler
	profiler.Start("x").End()
	profiler.Record("x", time.Millisecond)
	profiler.Add("x", 1)
	if profiler.Enabled() {
		t.Fatal("nil profiler must report disabled")
	}
}

func TestProfilerCounters(t *testing.T) {
	profiler := NewProfiler(true)
	profiler.Add(CounterChunksCreated, 5)
	profiler.Add(CounterChunksCreated, 2)
	profiler.Add(CounterChunksEvicted, 2)

	if got := profiler.Counter(CounterChunksCreated); got != 7 {
		t.Errorf("Expected 7 created, got %d", got)
	}
	if got := profiler.Counter(CounterChunksEvicted); got != 2 {
		t.Errorf("Expected 2 evicted, got %d", got)
	}
}

func TestProfilerReport(t *testing.T) {
	profiler := NewProfiler(true)
	if got := profiler.Report(); got != "No performance metrics recorded" {
		t.Fatalf("unexpected empty report %q", got)
	}

	profiler.Record(OpGeometryEncode, 10*time.Millisecond)
	profiler.Add(CounterChunksEvicted, 1)

	report := profiler.Report()
	for _, want := range []string{OpGeometryEncode, CounterChunksEvicted} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected report to mention %s:\n%s", want, report)
		}
	}
}

func TestProfilerJSONReport(t *testing.T) {
	profiler := NewProfiler(true)
	profiler.Record(OpStreamAdvance, 15*time.Millisecond)
	profiler.Add(CounterChunksCreated, 4)

	data, err := profiler.JSONReport()
	if err != nil {
		t.Fatalf("Failed to generate JSON report: %v", err)
	}

	var decoded struct {
		Metrics  map[string]struct{ Count int64 } `json:"metrics"`
		Counters map[string]int64                 `json:"counters"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("JSON report does not decode: %v", err)
	}
	if decoded.Metrics[OpStreamAdvance].Count != 1 {
		t.Errorf("Expected one advance sample, got %+v", decoded.Metrics)
	}
	if decoded.Counters[CounterChunksCreated] != 4 {
		t.Errorf("Expected 4 created chunks, got %+v", decoded.Counters)
	}
}
