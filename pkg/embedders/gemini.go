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
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/kadirpekel/contentgraph/pkg/config"
)

// Gemini implements embedder.Embedder against Google's genai SDK.
type Gemini struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGemini constructs a Gemini embedder from opts.
func NewGemini(opts *config.EmbedderOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("embedders: gemini: api_key is required")
	}
	model := opts.Model
	if model == "" {
		model = "text-embedding-004"
	}
	dimension := opts.Dimension
	if dimension == 0 {
		dimension = 768
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("embedders: gemini: create client: %w", err)
	}

	return &Gemini{client: client, model: model, dimension: dimension}, nil
}

func (e *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embedders: gemini: embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedders: gemini: empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}

func (e *Gemini) Dimension() int { return e.dimension }
func (e *Gemini) Model() string  { return e.model }
func (e *Gemini) Close() error   { return nil }
