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

// Package config loads the orchestrator's options surface from YAML,
// following the pointer-default/SetDefaults/Validate idiom used
// throughout this codebase.
package config

import "fmt"

// Options configures one orchestrator run: fan-out limits, TTLs,
// backoff, breaker and confidence thresholds, and embedder provider
// selection.
//
// Example YAML configuration:
//
//	fanout_limit: 8
//	default_ttl: 300
//	backoff_schedule: [2, 4, 8]
//	breaker:
//	  failure_threshold: 5
//	  open_timeout: 60
//	  success_threshold: 2
//	confidence:
//	  floor: 0.5
//	  max_low_confidence_depth: 3
//	  depth_decay_base: 0.9
//	adversarial:
//	  sycophancy_threshold: 0.30
//	  risk_ceiling: 5
//	  disagreement_embedding_weight: 0.7
//	  disagreement_risk_weight: 0.3
//	embedder:
//	  provider: hashing
type Options struct {
	// FanoutLimit bounds the number of tasks dispatched concurrently
	// within a single DAG level.
	// Default: 4
	FanoutLimit int `yaml:"fanout_limit,omitempty"`

	// DefaultTTL is the checkpoint TTL, in seconds, applied to every
	// checkpoint the pipeline seals (task nodes carry no TTL of their own).
	// Default: 300
	DefaultTTL int `yaml:"default_ttl,omitempty"`

	// BackoffSchedule is the ordered list of seconds to sleep between
	// retry attempts.
	// Default: [2, 4, 8]
	BackoffSchedule []int `yaml:"backoff_schedule,omitempty"`

	Breaker     *BreakerOptions     `yaml:"breaker,omitempty"`
	Confidence  *ConfidenceOptions  `yaml:"confidence,omitempty"`
	Adversarial *AdversarialOptions `yaml:"adversarial,omitempty"`
	Embedder    *EmbedderOptions    `yaml:"embedder,omitempty"`
}

// BreakerOptions mirrors breaker.Config's fields so Options can be
// loaded from a single YAML document without importing pkg/breaker
// from pkg/config (config sits below breaker in the dependency graph).
type BreakerOptions struct {
	FailureThreshold int `yaml:"failure_threshold,omitempty"`
	OpenTimeout      int `yaml:"open_timeout,omitempty"`
	SuccessThreshold int `yaml:"success_threshold,omitempty"`
}

// ConfidenceOptions configures confidence propagation and collapse.
type ConfidenceOptions struct {
	// Floor is the minimum acceptable outgoing confidence.
	// Default: 0.5
	Floor float64 `yaml:"floor,omitempty"`

	// MaxLowConfidenceDepth caps how deep a chain may run once its
	// confidence has begun decaying before CONFIDENCE_COLLAPSE fires.
	// Default: 3
	MaxLowConfidenceDepth int `yaml:"max_low_confidence_depth,omitempty"`

	// DepthDecayBase is the per-level multiplicative decay.
	// Default: 0.9
	DepthDecayBase float64 `yaml:"depth_decay_base,omitempty"`
}

// AdversarialOptions configures the adversarial cross-check guardrail.
type AdversarialOptions struct {
	// SycophancyThreshold is the disagreement-score cutoff above which
	// requires_human_review is set.
	// Default: 0.30
	SycophancyThreshold float64 `yaml:"sycophancy_threshold,omitempty"`

	// RiskCeiling normalizes the adversary's flagged-risk count into
	// [0,1] for the disagreement score.
	// Default: 5
	RiskCeiling int `yaml:"risk_ceiling,omitempty"`

	// DisagreementEmbeddingWeight weights the cosine-distance term of
	// the disagreement score.
	// Default: 0.7
	DisagreementEmbeddingWeight float64 `yaml:"disagreement_embedding_weight,omitempty"`

	// DisagreementRiskWeight weights the normalized risk-count term of
	// the disagreement score.
	// Default: 0.3
	DisagreementRiskWeight float64 `yaml:"disagreement_risk_weight,omitempty"`
}

// EmbedderOptions selects and configures the embedding provider used by
// the adversarial cross-check's semantic-overlap term.
type EmbedderOptions struct {
	Provider  string `yaml:"provider,omitempty"`
	Model     string `yaml:"model,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
}

// SetDefaults applies default values to every field left unset.
func (o *Options) SetDefaults() {
	if o.FanoutLimit == 0 {
		o.FanoutLimit = 4
	}
	if o.DefaultTTL == 0 {
		o.DefaultTTL = 300
	}
	if len(o.BackoffSchedule) == 0 {
		o.BackoffSchedule = []int{2, 4, 8}
	}
	if o.Breaker == nil {
		o.Breaker = &BreakerOptions{}
	}
	if o.Breaker.FailureThreshold == 0 {
		o.Breaker.FailureThreshold = 5
	}
	if o.Breaker.OpenTimeout == 0 {
		o.Breaker.OpenTimeout = 60
	}
	if o.Breaker.SuccessThreshold == 0 {
		o.Breaker.SuccessThreshold = 2
	}
	if o.Confidence == nil {
		o.Confidence = &ConfidenceOptions{}
	}
	if o.Confidence.Floor == 0 {
		o.Confidence.Floor = 0.5
	}
	if o.Confidence.MaxLowConfidenceDepth == 0 {
		o.Confidence.MaxLowConfidenceDepth = 3
	}
	if o.Confidence.DepthDecayBase == 0 {
		o.Confidence.DepthDecayBase = 0.9
	}
	if o.Adversarial == nil {
		o.Adversarial = &AdversarialOptions{}
	}
	if o.Adversarial.SycophancyThreshold == 0 {
		o.Adversarial.SycophancyThreshold = 0.30
	}
	if o.Adversarial.RiskCeiling == 0 {
		o.Adversarial.RiskCeiling = 5
	}
	if o.Adversarial.DisagreementEmbeddingWeight == 0 {
		o.Adversarial.DisagreementEmbeddingWeight = 0.7
	}
	if o.Adversarial.DisagreementRiskWeight == 0 {
		o.Adversarial.DisagreementRiskWeight = 0.3
	}
	if o.Embedder == nil {
		o.Embedder = &EmbedderOptions{}
	}
	if o.Embedder.Provider == "" {
		o.Embedder.Provider = "hashing"
	}
}

// Validate checks the configuration for internal consistency.
func (o *Options) Validate() error {
	if o.FanoutLimit < 1 {
		return fmt.Errorf("config: fanout_limit must be >= 1")
	}
	if o.DefaultTTL < 0 {
		return fmt.Errorf("config: default_ttl must be non-negative")
	}
	for _, s := range o.BackoffSchedule {
		if s < 0 {
			return fmt.Errorf("config: backoff_schedule entries must be non-negative")
		}
	}
	if o.Confidence != nil {
		if o.Confidence.Floor < 0 || o.Confidence.Floor > 1 {
			return fmt.Errorf("config: confidence.floor must be in [0,1]")
		}
		if o.Confidence.DepthDecayBase <= 0 || o.Confidence.DepthDecayBase > 1 {
			return fmt.Errorf("config: confidence.depth_decay_base must be in (0,1]")
		}
	}
	if o.Adversarial != nil {
		if o.Adversarial.SycophancyThreshold < 0 || o.Adversarial.SycophancyThreshold > 1 {
			return fmt.Errorf("config: adversarial.sycophancy_threshold must be in [0,1]")
		}
		w := o.Adversarial.DisagreementEmbeddingWeight + o.Adversarial.DisagreementRiskWeight
		if w <= 0 {
			return fmt.Errorf("config: adversarial disagreement weights must sum to a positive value")
		}
	}
	return nil
}
