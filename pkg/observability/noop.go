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
)

// NoopManager returns a no-operation Manager: tracing and metrics are
// both nil, and every Manager method already tolerates that. Use this
// when observability is completely disabled.
func NoopManager() *Manager {
	return &Manager{}
}

// =============================================================================
// No-op Metrics
// =============================================================================

// NoopMetrics is a Recorder implementation that discards everything.
// Useful where a caller wants to inject a Recorder unconditionally
// rather than carrying a nil *Metrics around.
type NoopMetrics struct{}

func (NoopMetrics) RecordTaskDispatch(_, _ string, _ time.Duration) {}
func (NoopMetrics) RecordTaskError(_, _ string)                     {}
func (NoopMetrics) SetTasksRunning(_ string, _ int)                 {}
func (NoopMetrics) RecordRollback(_ string)                         {}
func (NoopMetrics) RecordGuardrailTriggered(_ string)               {}
func (NoopMetrics) RecordBreakerTransition(_, _ string)             {}
func (NoopMetrics) RecordBreakerRejection(_ string)                 {}

// Handler returns a handler that reports 503 Service Unavailable.
func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

// =============================================================================
// Recorder Interface
// =============================================================================

// Recorder is the subset of *Metrics' behavior a caller needs when it
// wants metrics recording injected as an interface (e.g. to swap in
// NoopMetrics in tests without a nil check at every call site).
type Recorder interface {
	RecordTaskDispatch(agentID, status string, duration time.Duration)
	RecordTaskError(agentID, errorKind string)
	SetTasksRunning(runID string, count int)
	RecordRollback(runID string)
	RecordGuardrailTriggered(kind string)
	RecordBreakerTransition(agentID, state string)
	RecordBreakerRejection(agentID string)
}

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = NoopMetrics{}
)
