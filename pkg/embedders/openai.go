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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/config"
)

// OpenAI implements embedder.Embedder against the OpenAI embeddings API.
type OpenAI struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAI constructs an OpenAI embedder from opts.
func NewOpenAI(opts *config.EmbedderOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("embedders: openai: api_key is required")
	}

	model := opts.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	dimension := opts.Dimension
	if dimension == 0 {
		dimension = 1536
	}
	baseURL := opts.Host
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAI{
		client:    &http.Client{Timeout: 30 * time.Second},
		apiKey:    opts.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
	}, nil
}

func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embedders: openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedders: openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedders: openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedders: openai: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("embedders: openai: %s", errResp.Error.Message)
		}
		return nil, fmt.Errorf("embedders: openai: status %d: %s", resp.StatusCode, body)
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("embedders: openai: decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedders: openai: empty embedding response")
	}
	return parsed.Data[0].Embedding, nil
}

func (e *OpenAI) Dimension() int { return e.dimension }
func (e *OpenAI) Model() string  { return e.model }
func (e *OpenAI) Close() error   { return nil }

// AnthropicCompatible talks to any embeddings endpoint that mirrors the
// OpenAI request/response shape, which is how Anthropic-compatible
// gateways typically expose embedding models; no bespoke SDK exists in
// the corpus for this, so this reuses the OpenAI wire format under a
// distinct provider name and default host.
type AnthropicCompatible struct {
	*OpenAI
}

// NewAnthropicCompatible constructs an embedder against an
// Anthropic-compatible embeddings endpoint.
func NewAnthropicCompatible(opts *config.EmbedderOptions) (*AnthropicCompatible, error) {
	if opts.Host == "" {
		opts.Host = "https://api.anthropic.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "claude-embedding-v1"
	}
	base, err := NewOpenAI(opts)
	if err != nil {
		return nil, err
	}
	return &AnthropicCompatible{OpenAI: base}, nil
}
