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

// Package orchestrator implements the DAG scheduler and the agent
// execution pipeline: the two subsystems that, together with
// pkg/checkpoint and pkg/breaker, make up the orchestration core.
package orchestrator

import "time"

// AgentRole is the kind of work a task node requires of its agent.
type AgentRole string

const (
	RoleGenerator  AgentRole = "generator"
	RoleValidator  AgentRole = "validator"
	RoleAdversary  AgentRole = "adversarial"
	RolePublisher  AgentRole = "publisher"
	RoleGeneric    AgentRole = "generic-worker"
)

// ParallelHint tells the scheduler how a node wants to share its level
// with siblings.
type ParallelHint string

const (
	SerialRequired    ParallelHint = "serial-required"
	CanParallelize    ParallelHint = "can-parallelize"
	ParallelPreferred ParallelHint = "parallel-preferred"
)

// Schema is a minimal structural validator for agent payload bodies:
// required top-level fields and, optionally, an expected Go type tag
// per field. No JSON-Schema library in the corpus covers this (see
// DESIGN.md), so this is deliberately small rather than a reimplementation
// of JSON-Schema.
type Schema struct {
	Required []string
	// Types maps a required field name to one of "string", "number",
	// "bool", "array", "object". Fields absent from Types are accepted
	// with any type.
	Types map[string]string
}

// Node is an immutable task node. Once submitted, a Node's fields are
// never mutated - all mutable state lives in the scheduler's TaskState
// record keyed by the node's ID.
type Node struct {
	ID          string
	DependsOn   []string
	Role        AgentRole
	Parallelism ParallelHint

	InputSchema  *Schema
	OutputSchema *Schema

	Timeout    time.Duration
	MaxRetries int
	Idempotent bool

	// HighStakes triggers the adversarial cross-check guardrail
	// regardless of role.
	HighStakes bool

	// AgentID identifies which agent in Options.Agents handles this
	// node, and which breaker entry gates it.
	AgentID string

	// AdversaryAgentID is consulted during the adversarial cross-check
	// when HighStakes (or Role == RoleValidator) is true. If empty, no
	// cross-check runs even when the node would otherwise qualify.
	AdversaryAgentID string
}

// Assumption is a declared assumption with its own confidence.
type Assumption struct {
	Text       string
	Confidence float64
}

// Payload is the Agent Payload: the inter-component message that flows
// between the scheduler, the pipeline, and downstream tasks.
type Payload struct {
	TaskID       string
	AgentID      string
	CreatedAt    time.Time
	Body         any
	ContentHash  [32]byte
	Confidence   float64
	UpstreamIDs  []string
	ReasoningTrace string
	Assumptions  []Assumption
	Alternatives []string
	Metadata     map[string]any

	// FlaggedRisks is the list of risks an adversarial review raised
	// against the primary payload it examined. Its length, normalized
	// by Options.RiskCeiling, is the risk-count term of the disagreement
	// score (see guardrails.go's checkSycophancy). Empty on payloads
	// that aren't adversarial output.
	FlaggedRisks []string

	// Success is the agent's explicit success indicator. A false or
	// absent indicator is phantom success (see pipeline.go).
	Success    bool
	HasSuccess bool
}

// RequiresHumanReview reports whether the sycophancy guardrail flagged
// this payload for human review.
func (p Payload) RequiresHumanReview() bool {
	if p.Metadata == nil {
		return false
	}
	v, _ := p.Metadata["requires_human_review"].(bool)
	return v
}

// InputSet is the collection of upstream payloads passed into one
// agent invocation, keyed by upstream task id.
type InputSet map[string]Payload
