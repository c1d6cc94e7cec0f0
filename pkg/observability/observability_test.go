package observability

import (
	"testing"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

func TestMetricsRecording(t *testing.T) {
	cfg := &MetricsConfig{Enabled: true}
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordTaskDispatch("writer", string(orchestrator.StatusSucceeded), 100*time.Millisecond)
	m.RecordTaskError("writer", string(orchestrator.ErrAgentTimeout))
	m.SetTasksRunning("run-1", 3)
	m.RecordRollback("run-1")
	m.RecordGuardrailTriggered(string(orchestrator.ErrPhantomSuccess))
	m.RecordBreakerTransition("writer", "OPEN")
	m.RecordBreakerRejection("writer")

	if count := testutilCounterSum(t, m, "orchestrator_task_dispatched_total"); count != 1 {
		t.Errorf("expected 1 task dispatch recorded, got %v", count)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.RecordTaskDispatch("writer", "SUCCEEDED", time.Second)
	m.RecordTaskError("writer", "AGENT_TIMEOUT")
	m.SetTasksRunning("run-1", 1)
	m.RecordRollback("run-1")
	m.RecordGuardrailTriggered("SYCOPHANCY_SUSPECTED")
	m.RecordBreakerTransition("writer", "OPEN")
	m.RecordBreakerRejection("writer")

	if m.Handler() == nil {
		t.Error("expected nil *Metrics to still return a usable Handler")
	}
}

func TestDisabledMetricsConfigYieldsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m != nil {
		t.Error("expected disabled config to yield a nil *Metrics")
	}
}

func TestNoopMetricsSatisfiesRecorder(t *testing.T) {
	var r Recorder = NoopMetrics{}
	r.RecordTaskDispatch("writer", "SUCCEEDED", time.Millisecond)
	r.RecordGuardrailTriggered("SYCOPHANCY_SUSPECTED")
}

func TestStringTruncation(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"", 5, ""},
		{"test", 4, "test"},
		{"toolongstring", 4, "tool..."},
	}

	for _, tt := range tests {
		result := truncateString(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestEventSinkRecordsMetricsAndLogsWithoutTracer(t *testing.T) {
	manager := &Manager{}
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	manager.metrics = metrics

	sink := NewEventSink(manager, nil)

	// Exercise every event kind; none of these should panic even
	// though manager has no Tracer configured.
	sink.Emit(orchestrator.Event{
		Kind: orchestrator.EventTaskTransition, RunID: "run-1", TaskID: "draft", Seq: 1,
		Data: map[string]any{"status": "SUCCEEDED", "agent_id": "writer"},
	})
	sink.Emit(orchestrator.Event{
		Kind: orchestrator.EventGuardrailTriggered, RunID: "run-1", TaskID: "draft", Seq: 2,
		Data: map[string]any{"kind": "SYCOPHANCY_SUSPECTED"},
	})
	sink.Emit(orchestrator.Event{
		Kind: orchestrator.EventBreakerTransition, RunID: "run-1", TaskID: "draft", Seq: 3,
		Data: map[string]any{"agent_id": "writer", "from": "CLOSED", "to": "OPEN"},
	})
	sink.Emit(orchestrator.Event{
		Kind: orchestrator.EventRollback, RunID: "run-1", TaskID: "publish", Seq: 4,
		Data: map[string]any{"triggered_by": "draft"},
	})

	if count := testutilCounterSum(t, metrics, "orchestrator_task_dispatched_total"); count != 1 {
		t.Errorf("expected task transition to record a dispatch, got %v", count)
	}
}

// testutilCounterSum sums every series of a registered CounterVec by
// name via the Metrics registry's Gather, avoiding a hard dependency
// on internal field access from the test.
func testutilCounterSum(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
	}
	return total
}
