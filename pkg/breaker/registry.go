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

package breaker

import (
	"sync"

	"github.com/kadirpekel/contentgraph/pkg/registry"
)

// Registry holds one Breaker per agent id, created lazily on first use
// and shared process-wide, matching the teacher's generic registry
// pattern.
type Registry struct {
	reg *registry.BaseRegistry[*Breaker]
	cfg *Config

	// createMu serializes lazy-creation so two goroutines racing to
	// create the same agent's breaker can't both succeed at Register
	// and silently keep one; Get-then-create-then-Register would
	// otherwise double-create under concurrent first access.
	createMu sync.Mutex
}

// NewRegistry constructs a Registry. Every breaker it lazily creates
// uses cfg (a nil cfg yields defaults).
func NewRegistry(cfg *Config) *Registry {
	return &Registry{
		reg: registry.NewBaseRegistry[*Breaker](),
		cfg: cfg,
	}
}

// Get returns the breaker for agentID, creating it on first access.
func (r *Registry) Get(agentID string) *Breaker {
	if b, ok := r.reg.Get(agentID); ok {
		return b
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	if b, ok := r.reg.Get(agentID); ok {
		return b
	}
	b := New(r.cfg)
	_ = r.reg.Register(agentID, b)
	return b
}
