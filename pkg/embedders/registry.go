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

// Package embedders provides concrete embedder.Embedder implementations
// selected by name via a config-driven factory.
package embedders

import (
	"fmt"

	"github.com/kadirpekel/contentgraph/pkg/config"
	"github.com/kadirpekel/contentgraph/pkg/embedder"
)

// FromConfig constructs the embedder.Embedder named by opts.Provider.
// "hashing" (the default) needs no network access and is what tests use.
func FromConfig(opts *config.EmbedderOptions) (embedder.Embedder, error) {
	if opts == nil {
		opts = &config.EmbedderOptions{Provider: "hashing"}
	}

	switch opts.Provider {
	case "", "hashing":
		return NewHashing(opts.Dimension), nil
	case "openai":
		return NewOpenAI(opts)
	case "anthropic":
		return NewAnthropicCompatible(opts)
	case "gemini":
		return NewGemini(opts)
	case "ollama":
		return NewOllama(opts)
	default:
		return nil, fmt.Errorf("embedders: unsupported provider %q", opts.Provider)
	}
}
