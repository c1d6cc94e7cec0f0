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
	"crypto/sha256"
	"math"
	"strings"
)

// Hashing is a deterministic, dependency-free embedder. It hashes
// each lower-cased word into a fixed-width vector, giving texts
// that share vocabulary a higher cosine similarity than texts that
// don't - good enough for deterministic tests and for a zero-config
// default, not meant to compete with a trained embedding model.
type Hashing struct {
	dimension int
}

// NewHashing constructs a Hashing embedder with the given vector
// dimension (default 64 if dim <= 0).
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 64
	}
	return &Hashing{dimension: dim}
}

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return vec, nil
	}

	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		for i := 0; i < h.dimension; i++ {
			bucket := int(sum[i%len(sum)])
			if bucket%2 == 0 {
				vec[i] += 1
			} else {
				vec[i] -= 1
			}
		}
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func (h *Hashing) Dimension() int { return h.dimension }
func (h *Hashing) Model() string  { return "hashing-shingle" }
func (h *Hashing) Close() error   { return nil }
