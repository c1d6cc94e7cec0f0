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

package embedders

import (
	"fmt"

	"github.com/kadirpekel/contentgraph/pkg/config"
	"github.com/kadirpekel/contentgraph/pkg/embedder"
	"github.com/kadirpekel/contentgraph/pkg/registry"
)

// Table names multiple configured embedders (e.g. a cheap default plus
// an overridden provider for a specific agent role) by name.
type Table struct {
	*registry.BaseRegistry[embedder.Embedder]
}

// NewTable constructs an empty embedder table.
func NewTable() *Table {
	return &Table{BaseRegistry: registry.NewBaseRegistry[embedder.Embedder]()}
}

// CreateFromConfig builds an embedder from opts, registers it under
// name, and returns it.
func (t *Table) CreateFromConfig(name string, opts *config.EmbedderOptions) (embedder.Embedder, error) {
	if name == "" {
		return nil, fmt.Errorf("embedders: name cannot be empty")
	}
	e, err := FromConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := t.Register(name, e); err != nil {
		return nil, fmt.Errorf("embedders: register %q: %w", name, err)
	}
	return e, nil
}
