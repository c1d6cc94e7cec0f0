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
	"sync"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/config"
)

// Ollama implements embedder.Embedder against a local Ollama server.
//
// Requests are serialized: Ollama's llama runner has been observed to
// crash on concurrent embedding requests against the same model, so a
// single mutex guards every call regardless of which Ollama instance it
// targets.
type Ollama struct {
	client    *http.Client
	host      string
	model     string
	dimension int
}

var ollamaEmbedMu sync.Mutex

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllama constructs an Ollama embedder from opts.
func NewOllama(opts *config.EmbedderOptions) (*Ollama, error) {
	model := opts.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	host := opts.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	dimension := opts.Dimension
	if dimension == 0 {
		dimension = 768
	}

	return &Ollama{
		client:    &http.Client{Timeout: 30 * time.Second},
		host:      host,
		model:     model,
		dimension: dimension,
	}, nil
}

func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedders: ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedders: ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedders: ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedders: ollama: status %d: %s", resp.StatusCode, body)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedders: ollama: decode response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedders: ollama: empty embedding response")
	}
	return parsed.Embedding, nil
}

func (e *Ollama) Dimension() int { return e.dimension }
func (e *Ollama) Model() string  { return e.model }
func (e *Ollama) Close() error   { return nil }
