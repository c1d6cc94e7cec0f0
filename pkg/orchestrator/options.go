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

import (
	"fmt"

	"github.com/kadirpekel/contentgraph/pkg/breaker"
	"github.com/kadirpekel/contentgraph/pkg/checkpoint"
	"github.com/kadirpekel/contentgraph/pkg/config"
	"github.com/kadirpekel/contentgraph/pkg/embedder"
)

// Options bundles everything Submit/Run need beyond the DAG itself:
// the agent table, the shared breaker/checkpoint/embedder
// infrastructure, and the tunables loaded from pkg/config.
type Options struct {
	Agents map[string]Agent

	Breakers    *breaker.Registry
	Checkpoints *checkpoint.Verifier
	Embeddings  embedder.Embedder
	Cache       *embedder.Cache

	// Sink receives task-transition, checkpoint, guardrail, breaker,
	// and rollback events as the run progresses. A nil Sink is valid:
	// the run emits to a no-op implementation.
	Sink Sink

	FanoutLimit     int
	BackoffSchedule []int

	ConfidenceFloor       float64
	MaxLowConfidenceDepth int
	DepthDecayBase        float64

	SycophancyThreshold         float64
	RiskCeiling                 int
	DisagreementEmbeddingWeight float64
	DisagreementRiskWeight      float64
}

// FromConfig builds an Options from a loaded config.Options, filling
// in the infrastructure fields the caller still must supply (Agents,
// Breakers, Checkpoints, Embeddings, Cache) by reference.
func FromConfig(cfg *config.Options, agents map[string]Agent, breakers *breaker.Registry, checkpoints *checkpoint.Verifier, emb embedder.Embedder, cache *embedder.Cache) *Options {
	return &Options{
		Agents:          agents,
		Breakers:        breakers,
		Checkpoints:     checkpoints,
		Embeddings:      emb,
		Cache:           cache,
		FanoutLimit:     cfg.FanoutLimit,
		BackoffSchedule: cfg.BackoffSchedule,

		ConfidenceFloor:       cfg.Confidence.Floor,
		MaxLowConfidenceDepth: cfg.Confidence.MaxLowConfidenceDepth,
		DepthDecayBase:        cfg.Confidence.DepthDecayBase,

		SycophancyThreshold:         cfg.Adversarial.SycophancyThreshold,
		RiskCeiling:                 cfg.Adversarial.RiskCeiling,
		DisagreementEmbeddingWeight: cfg.Adversarial.DisagreementEmbeddingWeight,
		DisagreementRiskWeight:      cfg.Adversarial.DisagreementRiskWeight,
	}
}

// validateAgents checks that every Agent referenced by a node actually
// exists in the Agents table, deferring the "unknown dependency"
// structural checks to the scheduler's DAG validation pass.
func (o *Options) validateAgents(nodes []Node) error {
	for _, n := range nodes {
		if n.AgentID == "" {
			continue
		}
		if _, ok := o.Agents[n.AgentID]; !ok {
			return fmt.Errorf("orchestrator: node %q references unknown agent %q", n.ID, n.AgentID)
		}
	}
	return nil
}
