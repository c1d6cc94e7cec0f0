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

package embedder

import (
	"context"
	"sync"
)

// Cache holds already-computed primary/adversary embeddings for the
// lifetime of one orchestrator run, so the adversarial cross-check
// never re-embeds the same payload body twice within a run. Lookups
// are always by exact key (never similarity search), so a plain
// in-memory map is the right storage for this - no vector index
// belongs here.
type Cache struct {
	mu    sync.Mutex
	byKey map[string][]float32
}

// NewCache constructs an empty, in-memory embedding cache.
func NewCache() (*Cache, error) {
	return &Cache{byKey: make(map[string][]float32)}, nil
}

// Put stores the embedding for key (typically "<taskID>:<primary|adversary>").
func (c *Cache) Put(ctx context.Context, key string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[key] = vector
	return nil
}

// Get retrieves the embedding stored for key, if any.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.byKey[key]
	return v, ok
}
