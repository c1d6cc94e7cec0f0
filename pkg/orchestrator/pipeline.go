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
	"math"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/breaker"
	"github.com/kadirpekel/contentgraph/pkg/merkle"
)

// pipelineResult is what runPipeline returns for one task attempt:
// the produced payload (nil on failure), the sealed checkpoint id (if
// any), the guardrails that activated along the way, and a terminal
// error if the task failed.
type pipelineResult struct {
	Payload    *Payload
	Checkpoint string
	Guardrails []ErrorKind
	Err        *TaskError
}

// pipelineCtx is the per-invocation context runPipeline needs beyond
// the node and its inputs: the options bundle, the chain depth (for
// confidence decay), and the checkpoint id of the most recently
// completed upstream task, which becomes this task's predecessor.
type pipelineCtx struct {
	opts                 *Options
	guardrails           *guardrails
	depth                int
	predecessorCheckpoint string

	// onRetry, if set, is called once per retried invocation - after the
	// failed attempt is classified as retryable but before the backoff
	// sleep - so the caller can surface a RETRYING transition.
	onRetry func(attempt int, kind ErrorKind, cause error)
}

// runPipeline executes spec steps 1-8 for one task attempt.
func runPipeline(ctx context.Context, n Node, in InputSet, pc pipelineCtx) pipelineResult {
	var triggered []ErrorKind

	// Step 1: input integrity. Recompute the canonical hash of every
	// upstream payload body and compare against its stored hash.
	for id, p := range in {
		h, err := merkle.HashPayload(p.Body)
		if err != nil {
			return fail(n.ID, ErrIntegrityViolation, fmt.Errorf("upstream %s: canonical encode: %w", id, err))
		}
		if h != p.ContentHash {
			return fail(n.ID, ErrIntegrityViolation, fmt.Errorf("upstream %s: content hash mismatch", id))
		}
	}

	// Step 2: breaker admission.
	br := pc.opts.Breakers.Get(n.AgentID)
	if br.State() == breaker.OPEN {
		return fail(n.ID, ErrBreakerOpen, fmt.Errorf("agent %s breaker open", n.AgentID))
	}

	agent, ok := pc.opts.Agents[n.AgentID]
	if !ok {
		return fail(n.ID, ErrSchemaViolation, fmt.Errorf("no agent registered for id %q", n.AgentID))
	}

	// Step 3: invoke with retry-and-backoff.
	out, invokeErr := invokeWithRetry(ctx, n, agent, in, br, pc.opts.BackoffSchedule, pc.onRetry)
	if invokeErr != nil {
		return fail(n.ID, invokeErr.Kind, invokeErr.Cause)
	}

	// Step 4: output schema validation, including the explicit
	// success indicator (phantom-success guardrail).
	if err := n.OutputSchema.Validate(out.Body); err != nil {
		return fail(n.ID, ErrSchemaViolation, err)
	}
	if err := pc.guardrails.checkPhantomSuccess(n, out); err != nil {
		te := err.(*TaskError)
		triggered = append(triggered, te.Kind)
		return pipelineResult{Guardrails: triggered, Err: te}
	}

	// Hallucinated-dependency guardrail: the payload may not cite
	// provenance outside what this node actually depends on.
	if err := pc.guardrails.checkHallucinatedDependency(n, out); err != nil {
		te := err.(*TaskError)
		triggered = append(triggered, te.Kind)
		return pipelineResult{Guardrails: triggered, Err: te}
	}

	// Step 5: output integrity sealing.
	bodyHash, err := merkle.HashPayload(out.Body)
	if err != nil {
		return fail(n.ID, ErrIntegrityViolation, fmt.Errorf("seal output: %w", err))
	}
	out.ContentHash = bodyHash
	out.TaskID = n.ID
	out.AgentID = n.AgentID
	out.CreatedAt = time.Now()

	// Step 6: confidence propagation.
	inputConfidence := 1.0
	first := true
	for _, p := range in {
		if first || p.Confidence < inputConfidence {
			inputConfidence = p.Confidence
		}
		first = false
	}
	decay := math.Pow(pc.opts.DepthDecayBase, float64(pc.depth))
	out.Confidence = inputConfidence * out.Confidence * decay
	if out.Confidence < 0 {
		out.Confidence = 0
	}

	if err := pc.guardrails.checkConfidenceCollapse(n, out, pc.depth); err != nil {
		te := err.(*TaskError)
		triggered = append(triggered, te.Kind)
		return pipelineResult{Guardrails: triggered, Err: te}
	}

	// Step 7: adversarial cross-check, only for high-stakes or
	// validator-role tasks with an adversary configured.
	needsCrossCheck := (n.HighStakes || n.Role == RoleValidator) && n.AdversaryAgentID != ""
	if needsCrossCheck {
		adversaryAgent, ok := pc.opts.Agents[n.AdversaryAgentID]
		if ok {
			adversaryOut, advErr := adversaryAgent.Invoke(ctx, n.ID, in, time.Now().Add(n.Timeout))
			if advErr == nil {
				verdict, scErr := pc.guardrails.checkSycophancy(ctx, n, out, adversaryOut)
				if scErr == nil {
					if verdict.NullAdversary {
						triggered = append(triggered, ErrSycophancy)
						return pipelineResult{Guardrails: triggered, Err: NewTaskError(n.ID, ErrSycophancy,
							fmt.Errorf("disagreement score %.3f at/below threshold with empty adversary trace", verdict.DisagreementScore))}
					}
					if verdict.RequiresHumanReview {
						triggered = append(triggered, "requires_human_review")
						if out.Metadata == nil {
							out.Metadata = map[string]any{}
						}
						out.Metadata["requires_human_review"] = true
					}
				} else {
					slog.Warn("adversarial cross-check failed to score", "task_id", n.ID, "error", scErr)
				}
			} else {
				slog.Warn("adversarial agent invocation failed", "task_id", n.ID, "error", advErr)
			}
		}
	}

	// Desynchronization guardrail: if the upstream checkpoint this task's
	// reasoning was built on has since expired, force a refresh - reseal
	// it under a fresh TTL from its own stored snapshot - before this
	// task's own checkpoint is sealed on top of it. Per spec.md §4.2 this
	// never fails the task; it only fails (via ErrCheckpointMismatch) if
	// the predecessor's state was found to be outright corrupt.
	if pc.predecessorCheckpoint != "" {
		if predCp, ok := pc.opts.Checkpoints.Get(pc.predecessorCheckpoint); ok {
			if err := pc.guardrails.checkDesynchronization(n, pc.predecessorCheckpoint, predCp.Snapshot); err != nil {
				te := err.(*TaskError)
				if te.Kind != ErrCheckpointExpired {
					triggered = append(triggered, te.Kind)
					return pipelineResult{Guardrails: triggered, Err: te}
				}
				if _, rerr := pc.opts.Checkpoints.Create(pc.predecessorCheckpoint, predCp.Snapshot, 0, nil); rerr == nil {
					triggered = append(triggered, ErrCheckpointExpired)
					slog.Warn("desync guardrail: forced checkpoint refresh", "task_id", n.ID, "checkpoint_id", pc.predecessorCheckpoint)
				}
			}
		}
	}

	// Step 8: seal checkpoint, predecessor set to the most recently
	// completed upstream task's checkpoint id.
	checkpointID := n.ID
	var predecessor *string
	if pc.predecessorCheckpoint != "" {
		predecessor = &pc.predecessorCheckpoint
	}
	if _, err := pc.opts.Checkpoints.Create(checkpointID, out.Body, 0, predecessor); err != nil {
		return fail(n.ID, ErrCheckpointMismatch, fmt.Errorf("seal checkpoint: %w", err))
	}

	return pipelineResult{Payload: &out, Checkpoint: checkpointID, Guardrails: triggered}
}

func fail(taskID string, kind ErrorKind, cause error) pipelineResult {
	return pipelineResult{Err: NewTaskError(taskID, kind, cause)}
}

// invokeError is the kind and cause of a failed invocation, with the
// kind assigned by classifyAgentError (or BREAKER_OPEN).
type invokeError struct {
	Kind  ErrorKind
	Cause error
}

func invokeWithRetry(ctx context.Context, n Node, agent Agent, in InputSet, br *breaker.Breaker, backoff []int, onRetry func(attempt int, kind ErrorKind, cause error)) (Payload, *invokeError) {
	var lastErr error
	attempts := n.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		deadline := time.Now().Add(n.Timeout)
		callCtx, cancel := context.WithDeadline(ctx, deadline)

		var out Payload
		callErr := br.CallThrough(callCtx, func(callCtx context.Context) error {
			var invokeErr error
			out, invokeErr = agent.Invoke(callCtx, n.ID, in, deadline)
			return invokeErr
		})
		cancel()

		if callErr == nil {
			return out, nil
		}
		lastErr = callErr

		if callErr == breaker.ErrOpen {
			return Payload{}, &invokeError{Kind: ErrBreakerOpen, Cause: callErr}
		}

		kind := classifyAgentError(callCtx, callErr)
		if !NewTaskError(n.ID, kind, callErr).Retryable() {
			return Payload{}, &invokeError{Kind: kind, Cause: callErr}
		}
		if attempt == attempts-1 {
			break
		}
		if onRetry != nil {
			onRetry(attempt+1, kind, callErr)
		}
		sleepBackoff(ctx, backoff, attempt)
	}
	return Payload{}, &invokeError{Kind: ErrAgentTimeout, Cause: lastErr}
}

func classifyAgentError(ctx context.Context, err error) ErrorKind {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrAgentTimeout
	}
	return ErrAgentTransient
}

func sleepBackoff(ctx context.Context, schedule []int, attempt int) {
	if len(schedule) == 0 {
		return
	}
	seconds := schedule[len(schedule)-1]
	if attempt < len(schedule) {
		seconds = schedule[attempt]
	}
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
