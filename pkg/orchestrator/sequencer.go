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

package orchestrator

import "sync/atomic"

// sequencer hands out monotonically increasing completion-order
// numbers. The scheduler uses this order to pick, among a task's
// dependencies, the one that completed most recently as the
// predecessor of the task's own checkpoint, since concurrent
// completions within a level make wall-clock time an unreliable
// total order.
type sequencer struct {
	next atomic.Uint64
}

// advance returns the next completion-order number, starting at 1 so
// that 0 can mean "never completed".
func (s *sequencer) advance() uint64 {
	return s.next.Add(1)
}
