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
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kadirpekel/contentgraph/pkg/checkpoint"
	"github.com/kadirpekel/contentgraph/pkg/embedder"
)

// guardrails bundles the five checks the pipeline runs around every
// task execution. Each check is independent and side-effect free
// except for the logging it does when it trips.
type guardrails struct {
	opts *Options
}

// checkHallucinatedDependency rejects a payload that cites an upstream
// task ID the node didn't actually depend on - a sign the agent
// invented provenance rather than reading its real inputs.
func (g *guardrails) checkHallucinatedDependency(n Node, out Payload) error {
	declared := make(map[string]bool, len(n.DependsOn)+1)
	declared["_initial"] = true
	for _, id := range n.DependsOn {
		declared[id] = true
	}
	for _, cited := range out.UpstreamIDs {
		if !declared[cited] {
			return NewTaskError(n.ID, ErrHallucinatedDep,
				fmt.Errorf("cites upstream task %q, which is not in DependsOn", cited))
		}
	}
	return nil
}

// checkPhantomSuccess rejects a payload that never set an explicit
// success indicator, or set it false while still completing without
// error - the "tool claimed success silently" failure mode.
func (g *guardrails) checkPhantomSuccess(n Node, out Payload) error {
	if !out.HasSuccess {
		return NewTaskError(n.ID, ErrPhantomSuccess,
			fmt.Errorf("agent returned no explicit success indicator"))
	}
	if !out.Success {
		return NewTaskError(n.ID, ErrPhantomSuccess,
			fmt.Errorf("agent reported success=false"))
	}
	return nil
}

// checkConfidenceCollapse flags a task whose propagated confidence has
// fallen below the configured floor, or whose chain depth exceeds
// MaxLowConfidenceDepth.
func (g *guardrails) checkConfidenceCollapse(n Node, out Payload, depth int) error {
	if out.Confidence < g.opts.ConfidenceFloor {
		return NewTaskError(n.ID, ErrConfidenceCollapse,
			fmt.Errorf("confidence %.3f below floor %.3f", out.Confidence, g.opts.ConfidenceFloor))
	}
	if depth > g.opts.MaxLowConfidenceDepth {
		return NewTaskError(n.ID, ErrConfidenceCollapse,
			fmt.Errorf("chain depth %d exceeds max low-confidence depth %d", depth, g.opts.MaxLowConfidenceDepth))
	}
	return nil
}

// checkDesynchronization verifies the checkpoint a task's inputs claim
// to be built on is still live. A stale checkpoint means the upstream
// state changed after this task started reasoning about it.
func (g *guardrails) checkDesynchronization(n Node, checkpointID string, current any) error {
	if checkpointID == "" || g.opts.Checkpoints == nil {
		return nil
	}
	verdict := g.opts.Checkpoints.Verify(checkpointID, current)
	switch verdict {
	case checkpoint.VALID:
		return nil
	case checkpoint.EXPIRED:
		return NewTaskError(n.ID, ErrCheckpointExpired, fmt.Errorf("checkpoint %s expired", checkpointID))
	case checkpoint.HASH_MISMATCH:
		return NewTaskError(n.ID, ErrCheckpointMismatch, fmt.Errorf("checkpoint %s hash mismatch", checkpointID))
	default:
		return NewTaskError(n.ID, ErrCheckpointMismatch, fmt.Errorf("checkpoint %s not found", checkpointID))
	}
}

// sycophancyVerdict is the outcome of the adversarial cross-check.
type sycophancyVerdict struct {
	DisagreementScore   float64
	RequiresHumanReview bool
	NullAdversary       bool
}

// checkSycophancy runs the adversarial cross-check: it embeds both the
// primary and adversary outputs and computes a disagreement score that
// blends semantic distance (1 - cosine similarity) with a risk-flag
// distance. A score above the sycophancy threshold flags the payload
// for human review. A score at or below the threshold combined with an
// adversary that produced no independent reasoning trace is a null
// adversary - it didn't reason, it rubber-stamped - and the caller
// must fail the task with SYCOPHANCY_SUSPECTED.
func (g *guardrails) checkSycophancy(ctx context.Context, n Node, primary Payload, adversary Payload) (sycophancyVerdict, error) {
	if g.opts.Embeddings == nil {
		return sycophancyVerdict{}, nil
	}

	primaryText := renderForEmbedding(primary)
	adversaryText := renderForEmbedding(adversary)

	primaryVec, err := g.embedCached(ctx, n.ID+":primary", primaryText)
	if err != nil {
		return sycophancyVerdict{}, fmt.Errorf("sycophancy check: embed primary: %w", err)
	}
	adversaryVec, err := g.embedCached(ctx, n.ID+":adversary", adversaryText)
	if err != nil {
		return sycophancyVerdict{}, fmt.Errorf("sycophancy check: embed adversary: %w", err)
	}

	semanticDistance := 1 - embedder.CosineSimilarity(primaryVec, adversaryVec)
	riskDistance := riskFlagDistance(adversary, g.opts.RiskCeiling)

	score := g.opts.DisagreementEmbeddingWeight*semanticDistance + g.opts.DisagreementRiskWeight*riskDistance
	verdict := sycophancyVerdict{DisagreementScore: score}

	if score > g.opts.SycophancyThreshold {
		verdict.RequiresHumanReview = true
		return verdict, nil
	}

	if strings.TrimSpace(adversary.ReasoningTrace) == "" {
		verdict.NullAdversary = true
		slog.Warn("sycophancy suspected: null adversary", "task_id", n.ID, "disagreement_score", score, "threshold", g.opts.SycophancyThreshold)
	}
	return verdict, nil
}

func (g *guardrails) embedCached(ctx context.Context, key, text string) ([]float32, error) {
	if g.opts.Cache != nil {
		if v, ok := g.opts.Cache.Get(ctx, key); ok {
			return v, nil
		}
	}
	v, err := g.opts.Embeddings.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if g.opts.Cache != nil {
		_ = g.opts.Cache.Put(ctx, key, v)
	}
	return v, nil
}

func renderForEmbedding(p Payload) string {
	var b strings.Builder
	if s, ok := p.Body.(string); ok {
		b.WriteString(s)
	} else {
		b.WriteString(fmt.Sprintf("%v", p.Body))
	}
	b.WriteString(" ")
	b.WriteString(p.ReasoningTrace)
	return b.String()
}

// riskFlagDistance normalizes the adversary's flagged-risk count into
// [0,1] by a configurable ceiling: an adversary that raises ceiling (or
// more) distinct risks contributes the maximum distance, one that
// raises none contributes zero. A non-positive ceiling disables the
// term rather than dividing by zero.
func riskFlagDistance(adversary Payload, ceiling int) float64 {
	if ceiling <= 0 {
		return 0
	}
	d := float64(len(adversary.FlaggedRisks)) / float64(ceiling)
	if d > 1 {
		d = 1
	}
	return d
}
