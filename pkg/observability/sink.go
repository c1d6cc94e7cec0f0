// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// EventSink is the default implementation of orchestrator.Sink: every
// Event is recorded as a Prometheus metric (when the Manager has
// metrics enabled), a short OpenTelemetry span (when tracing is
// enabled), and a structured log line.
type EventSink struct {
	manager *Manager
	logger  *slog.Logger
}

// NewEventSink builds the default event sink around an observability
// Manager. A nil logger falls back to slog.Default(), matching
// pkg/logger's GetLogger behavior of lazily initializing a default.
func NewEventSink(manager *Manager, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{manager: manager, logger: logger}
}

// Emit implements orchestrator.Sink.
func (s *EventSink) Emit(ev orchestrator.Event) {
	s.recordMetric(ev)
	s.traceSpan(ev)
	s.logEvent(ev)
}

func (s *EventSink) recordMetric(ev orchestrator.Event) {
	m := s.manager.Metrics()
	if m == nil {
		return
	}
	agentID, _ := ev.Data["agent_id"].(string)

	switch ev.Kind {
	case orchestrator.EventTaskTransition:
		status, _ := ev.Data["status"].(string)
		m.RecordTaskDispatch(agentID, status, 0)
		if kind, ok := ev.Data["error_kind"].(string); ok {
			m.RecordTaskError(agentID, kind)
			if kind == string(orchestrator.ErrBreakerOpen) {
				m.RecordBreakerRejection(agentID)
			}
		}
	case orchestrator.EventGuardrailTriggered:
		kind, _ := ev.Data["kind"].(string)
		m.RecordGuardrailTriggered(kind)
	case orchestrator.EventBreakerTransition:
		to, _ := ev.Data["to"].(string)
		m.RecordBreakerTransition(agentID, to)
	case orchestrator.EventRollback:
		m.RecordRollback(ev.RunID)
	}
}

// traceSpan records ev as a zero-duration span: Emit has no live span
// context to attach an event to (the scheduler calls it after the
// state mutation, not while a span is open), so each Event becomes
// its own start/end pair carrying the same attributes a span.Event
// would.
func (s *EventSink) traceSpan(ev orchestrator.Event) {
	tracer := s.manager.Tracer()
	if tracer == nil {
		return
	}
	agentID, _ := ev.Data["agent_id"].(string)

	name := SpanAgentInvoke
	if ev.Kind == orchestrator.EventTaskTransition {
		name = SpanTaskRun
	}

	_, span := tracer.Start(context.Background(), name, trace.WithAttributes(
		attribute.String(AttrRunID, ev.RunID),
		attribute.String(AttrTaskID, ev.TaskID),
		attribute.String(AttrAgentID, agentID),
		attribute.String("orchestrator.event_kind", string(ev.Kind)),
	))
	span.End()
}

func (s *EventSink) logEvent(ev orchestrator.Event) {
	attrs := []any{"run_id", ev.RunID, "task_id", ev.TaskID, "seq", ev.Seq}
	for k, v := range ev.Data {
		attrs = append(attrs, k, v)
	}
	s.logger.Info(string(ev.Kind), attrs...)
}

var _ orchestrator.Sink = (*EventSink)(nil)
