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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the orchestrator: task
// dispatch outcomes, guardrail activations, and breaker transitions.
// Every other metric group the teacher collected (LLM, RAG, HTTP,
// session) has no surface in this domain and was dropped.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	taskDispatched *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	taskErrors     *prometheus.CounterVec
	tasksRunning   *prometheus.GaugeVec

	guardrailTriggered *prometheus.CounterVec

	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec

	rollbacks *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance from configuration. A nil
// or disabled config yields a nil *Metrics; every method on *Metrics
// is nil-safe so callers never need to check.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	m := &Metrics{config: cfg, registry: prometheus.NewRegistry()}
	m.initTaskMetrics()
	m.initGuardrailMetrics()
	m.initBreakerMetrics()
	return m, nil
}

func (m *Metrics) initTaskMetrics() {
	m.taskDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "task", Name: "dispatched_total",
		Help:        "Total number of task dispatch attempts, including retries.",
		ConstLabels: m.config.ConstLabels,
	}, []string{"agent_id", "status"})

	m.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.config.Namespace, Subsystem: "task", Name: "duration_seconds",
		Help:        "Task wall-clock duration in seconds, from dispatch to terminal status.",
		Buckets:     prometheus.ExponentialBuckets(0.01, 2, 15),
		ConstLabels: m.config.ConstLabels,
	}, []string{"agent_id"})

	m.taskErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "task", Name: "errors_total",
		Help:        "Total number of task failures, by error kind.",
		ConstLabels: m.config.ConstLabels,
	}, []string{"agent_id", "error_kind"})

	m.tasksRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.config.Namespace, Subsystem: "task", Name: "running",
		Help:        "Number of tasks currently dispatched to an agent, per run.",
		ConstLabels: m.config.ConstLabels,
	}, []string{"run_id"})

	m.rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "task", Name: "rollbacks_total",
		Help:        "Total number of tasks marked ROLLED_BACK by a downstream failure.",
		ConstLabels: m.config.ConstLabels,
	}, []string{"run_id"})

	m.registry.MustRegister(m.taskDispatched, m.taskDuration, m.taskErrors, m.tasksRunning, m.rollbacks)
}

func (m *Metrics) initGuardrailMetrics() {
	m.guardrailTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "guardrail", Name: "triggered_total",
		Help:        "Total number of guardrail activations, by kind.",
		ConstLabels: m.config.ConstLabels,
	}, []string{"kind"})

	m.registry.MustRegister(m.guardrailTriggered)
}

func (m *Metrics) initBreakerMetrics() {
	m.breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "breaker", Name: "transitions_total",
		Help:        "Total number of circuit breaker state transitions, by agent and destination state.",
		ConstLabels: m.config.ConstLabels,
	}, []string{"agent_id", "state"})

	m.breakerRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.config.Namespace, Subsystem: "breaker", Name: "rejections_total",
		Help:        "Total number of task dispatches rejected by an open breaker.",
		ConstLabels: m.config.ConstLabels,
	}, []string{"agent_id"})

	m.registry.MustRegister(m.breakerTransitions, m.breakerRejections)
}

// RecordTaskDispatch records one task status transition under its new
// status.
func (m *Metrics) RecordTaskDispatch(agentID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDispatched.WithLabelValues(agentID, status).Inc()
	m.taskDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordTaskError records a task failure, classified by error kind.
func (m *Metrics) RecordTaskError(agentID, errorKind string) {
	if m == nil {
		return
	}
	m.taskErrors.WithLabelValues(agentID, errorKind).Inc()
}

// SetTasksRunning reports the current in-flight task count for a run.
func (m *Metrics) SetTasksRunning(runID string, count int) {
	if m == nil {
		return
	}
	m.tasksRunning.WithLabelValues(runID).Set(float64(count))
}

// RecordRollback records one task being marked ROLLED_BACK.
func (m *Metrics) RecordRollback(runID string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(runID).Inc()
}

// RecordGuardrailTriggered records one guardrail activation.
func (m *Metrics) RecordGuardrailTriggered(kind string) {
	if m == nil {
		return
	}
	m.guardrailTriggered.WithLabelValues(kind).Inc()
}

// RecordBreakerTransition records a breaker moving to state.
func (m *Metrics) RecordBreakerTransition(agentID, state string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(agentID, state).Inc()
}

// RecordBreakerRejection records a dispatch rejected by an open
// breaker.
func (m *Metrics) RecordBreakerRejection(agentID string) {
	if m == nil {
		return
	}
	m.breakerRejections.WithLabelValues(agentID).Inc()
}

// Handler returns the Prometheus scrape endpoint for this Metrics
// instance, or a 503 handler if metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying Prometheus registry, mostly useful
// for tests that want to assert on collected samples directly.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
