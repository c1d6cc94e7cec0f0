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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/contentgraph/pkg/checkpoint"
)

// run holds the full mutable state of one submitted DAG for its
// lifetime: the leveled node order, the task registry, and the
// bookkeeping the rollback policy and Inspect need.
type run struct {
	id    string
	nodes map[string]Node
	edges map[string][]string // node -> downstream dependents
	depth map[string]int      // longest path from a root, per node

	levels [][]Node

	opts    *Options
	reg     *Registry
	seq     sequencer
	seqCounter eventSeq
	runCtx  context.Context
	initial map[string]Payload

	mu           sync.Mutex
	lastSealedOf map[string]string // nodeID -> checkpoint id that nodeID itself sealed on success
	reviewFlagged map[string]bool

	failed bool
	done   bool
}

// Submit validates the DAG (dependency registry, cycle detection), computes
// the level assignment, and returns a Handle the caller later passes to Run.
func Submit(nodes []Node, initial map[string]Payload, opts *Options) (*Handle, error) {
	if opts == nil {
		return nil, fmt.Errorf("orchestrator: submit: options required")
	}
	if err := opts.validateAgents(nodes); err != nil {
		return nil, err
	}

	nodeByID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if _, dup := nodeByID[n.ID]; dup {
			return nil, NewTaskError(n.ID, ErrSchemaRejected, fmt.Errorf("duplicate task id %q", n.ID))
		}
		nodeByID[n.ID] = n
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, ok := nodeByID[dep]; !ok {
				return nil, NewTaskError(n.ID, ErrHallucinatedDep, fmt.Errorf("depends on unknown task %q", dep))
			}
		}
	}

	levels, depth, err := levelDAG(nodeByID)
	if err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n.ID] = i
	}
	for _, lvl := range levels {
		sort.SliceStable(lvl, func(a, b int) bool { return pos[lvl[a].ID] < pos[lvl[b].ID] })
	}

	reg := newRegistry()
	for _, n := range nodes {
		status := StatusPending
		if len(n.DependsOn) == 0 {
			status = StatusReady
		}
		reg.set(n.ID, &TaskState{Node: n, Status: status})
	}

	edges := make(map[string][]string)
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			edges[dep] = append(edges[dep], n.ID)
		}
	}

	r := &run{
		id:            "run-" + uuid.NewString(),
		nodes:         nodeByID,
		edges:         edges,
		depth:         depth,
		levels:        levels,
		opts:          opts,
		reg:           reg,
		initial:       initial,
		lastSealedOf:  make(map[string]string),
		reviewFlagged: make(map[string]bool),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{RunID: r.id, cancel: cancel, run: r}
	r.runCtx = ctx
	return h, nil
}

// levelDAG computes a Kahn's-algorithm topological leveling: level k
// contains every node whose dependencies are all in levels < k. It also
// returns, per node, the longest-path depth from a root (used for
// confidence decay). A remaining in-degree after the loop means a cycle.
func levelDAG(nodeByID map[string]Node) ([][]Node, map[string]int, error) {
	inDegree := make(map[string]int, len(nodeByID))
	for id, n := range nodeByID {
		inDegree[id] = len(n.DependsOn)
	}

	dependents := make(map[string][]string)
	for id, n := range nodeByID {
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	depth := make(map[string]int, len(nodeByID))
	var levels [][]Node
	remaining := len(nodeByID)

	current := make([]string, 0)
	for id, d := range inDegree {
		if d == 0 {
			current = append(current, id)
		}
	}

	level := 0
	for len(current) > 0 {
		var levelNodes []Node
		var next []string
		for _, id := range current {
			levelNodes = append(levelNodes, nodeByID[id])
			depth[id] = level
			remaining--
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		levels = append(levels, levelNodes)
		current = next
		level++
	}

	if remaining != 0 {
		for id, d := range inDegree {
			if d > 0 {
				return nil, nil, NewTaskError(id, ErrCircularDependency, fmt.Errorf("cycle detected involving task %q", id))
			}
		}
		return nil, nil, NewTaskError("", ErrCircularDependency, fmt.Errorf("cycle detected"))
	}

	return levels, depth, nil
}

// Run drives the submitted DAG to completion: level by level, dispatching
// eligible tasks to the pipeline, handling retries, and rolling back on
// unretryable failure.
func Run(ctx context.Context, h *Handle) (*Result, error) {
	r := h.run
	runCtx, cancel := mergeContexts(ctx, r.runCtx)
	defer cancel()

	for _, level := range r.levels {
		if runCtx.Err() != nil {
			break
		}
		if err := r.runLevel(runCtx, level); err != nil {
			r.mu.Lock()
			r.failed = true
			r.mu.Unlock()
			break
		}
	}

	r.mu.Lock()
	r.done = true
	failed := r.failed
	r.mu.Unlock()

	states := r.reg.All()
	outputs := make(map[string]Payload, len(states))
	for id, st := range states {
		if st.Status == StatusSucceeded && st.Output != nil {
			outputs[id] = *st.Output
		}
	}

	return &Result{RunID: r.id, Tasks: states, Outputs: outputs, Failed: failed}, nil
}

// Cancel signals global cancellation of the run. In-flight tasks observe
// it on their next ctx check; already-sealed checkpoints are preserved.
func Cancel(h *Handle) {
	h.Cancel()
}

// Inspect returns a non-blocking snapshot of every task's current state.
func Inspect(h *Handle) Snapshot {
	return h.Inspect()
}

func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	go func() {
		select {
		case <-ctx.Done():
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}

// runLevel dispatches every eligible task in a level: serial-required
// tasks execute one at a time in insertion order, can-parallelize and
// parallel-preferred tasks run concurrently under an errgroup bounded
// by the fan-out limit.
func (r *run) runLevel(ctx context.Context, level []Node) error {
	var serial []Node
	var parallel []Node
	for _, n := range level {
		if st, _ := r.reg.Get(n.ID); st.Status == StatusRolledBack || st.Status == StatusSkipped {
			continue
		}
		if n.Parallelism == SerialRequired {
			serial = append(serial, n)
		} else {
			parallel = append(parallel, n)
		}
	}

	for _, n := range serial {
		if err := r.dispatch(ctx, n); err != nil {
			return err
		}
	}

	if len(parallel) == 0 {
		return nil
	}

	limit := r.opts.FanoutLimit
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, n := range parallel {
		n := n
		g.Go(func() error {
			return r.dispatch(gctx, n)
		})
	}
	return g.Wait()
}

// dispatch runs one task to terminal status: success, failure (with
// rollback), or skip (an upstream it depends on failed/rolled back). A
// failed task with its Idempotent flag set is left in PENDING rather
// than FAILED (spec.md §9, Open Question 2), so a later re-submission
// against the rolled-back state can pick it back up without the
// caller needing to special-case it; this run does not re-dispatch it
// itself since the level it belonged to has already been processed. A
// panic inside the pipeline is recovered and converted into a failure
// so one runaway agent can't take down the run.
func (r *run) dispatch(ctx context.Context, n Node) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("orchestrator: panic recovered in task dispatch", "task_id", n.ID, "panic", rec)
			r.reg.mutate(n.ID, func(st *TaskState) {
				st.Status = StatusFailed
				st.Err = NewTaskError(n.ID, ErrAgentTransient, fmt.Errorf("panic: %v", rec))
			})
			r.emit(EventTaskTransition, n.ID, map[string]any{"status": string(StatusFailed), "agent_id": n.AgentID, "reason": "panic"})
			r.rollback(n.ID)
			err = st2err(n.ID)
		}
	}()

	in, skip := r.gatherInputs(n)
	if skip {
		r.reg.mutate(n.ID, func(st *TaskState) { st.Status = StatusSkipped })
		r.emit(EventTaskTransition, n.ID, map[string]any{"status": string(StatusSkipped), "agent_id": n.AgentID})
		return nil
	}

	predecessor := r.mostRecentUpstreamCheckpoint(n)

	// The retry-with-backoff loop for retryable agent errors lives
	// inside invokeWithRetry (pipeline.go step 3), bounded by n.MaxRetries
	// there; dispatch itself makes a single pass through the pipeline per
	// call and does not loop. Each retry
	// invokeWithRetry takes is reported back here through onRetry so the
	// task's status visibly passes through RETRYING, per spec.md's state
	// machine, instead of silently looping inside the pipeline.
	r.reg.mutate(n.ID, func(st *TaskState) { st.Status = StatusRunning })
	r.emit(EventTaskTransition, n.ID, map[string]any{"status": string(StatusRunning), "agent_id": n.AgentID})

	onRetry := func(attempt int, kind ErrorKind, cause error) {
		r.reg.mutate(n.ID, func(st *TaskState) {
			st.Status = StatusRetrying
			st.Attempt = attempt
			st.RetryHistory = append(st.RetryHistory, RetryAttempt{Attempt: attempt, Kind: kind, Cause: cause, At: time.Now()})
		})
		r.emit(EventTaskTransition, n.ID, map[string]any{"status": string(StatusRetrying), "agent_id": n.AgentID, "attempt": attempt, "error_kind": string(kind)})
	}

	breakerBefore := r.opts.Breakers.Get(n.AgentID).State()
	result := runPipeline(ctx, n, in, pipelineCtx{
		opts:                  r.opts,
		guardrails:            &guardrails{opts: r.opts},
		depth:                 r.depth[n.ID],
		predecessorCheckpoint: predecessor,
		onRetry:               onRetry,
	})
	if breakerAfter := r.opts.Breakers.Get(n.AgentID).State(); breakerAfter != breakerBefore {
		r.emit(EventBreakerTransition, n.ID, map[string]any{"agent_id": n.AgentID, "from": string(breakerBefore), "to": string(breakerAfter)})
	}
	for _, g := range result.Guardrails {
		r.emit(EventGuardrailTriggered, n.ID, map[string]any{"kind": string(g)})
	}
	if result.Checkpoint != "" {
		r.emit(EventCheckpointCreated, n.ID, map[string]any{"checkpoint_id": result.Checkpoint, "agent_id": n.AgentID, "predecessor": predecessor})
	}

	if result.Err != nil {
		r.reg.mutate(n.ID, func(st *TaskState) {
			st.Status = StatusFailed
			st.Err = result.Err
		})
		r.emit(EventTaskTransition, n.ID, map[string]any{"status": string(StatusFailed), "agent_id": n.AgentID, "error_kind": string(result.Err.Kind)})
		r.rollback(n.ID)
		if n.Idempotent {
			r.reg.mutate(n.ID, func(st *TaskState) { st.Status = StatusPending })
			r.emit(EventTaskTransition, n.ID, map[string]any{"status": string(StatusPending), "agent_id": n.AgentID, "reason": "idempotent_retry"})
		}
		return result.Err
	}

	order := r.seq.advance()
	r.reg.mutate(n.ID, func(st *TaskState) {
		st.Status = StatusSucceeded
		st.Output = result.Payload
		st.Checkpoint = result.Checkpoint
		st.CompletionOrder = order
	})
	r.emit(EventTaskTransition, n.ID, map[string]any{"status": string(StatusSucceeded), "agent_id": n.AgentID})
	r.mu.Lock()
	r.lastSealedOf[n.ID] = result.Checkpoint
	for _, g := range result.Guardrails {
		if g == "requires_human_review" {
			r.reviewFlagged[n.ID] = true
		}
	}
	r.mu.Unlock()

	return nil
}

func st2err(taskID string) error {
	return fmt.Errorf("task %s failed", taskID)
}

// gatherInputs collects the succeeded upstream payloads for n. If any
// upstream did not succeed, n is not eligible and must be skipped. A
// root task (no dependencies) is seeded with its caller-supplied
// initial payload, if any, under the synthetic key "_initial".
func (r *run) gatherInputs(n Node) (InputSet, bool) {
	if len(n.DependsOn) == 0 {
		in := InputSet{}
		if p, ok := r.initial[n.ID]; ok {
			in["_initial"] = p
		}
		return in, false
	}

	in := make(InputSet, len(n.DependsOn))
	for _, dep := range n.DependsOn {
		st, ok := r.reg.Get(dep)
		if !ok || st.Status != StatusSucceeded || st.Output == nil {
			return nil, true
		}
		in[dep] = *st.Output
	}
	return in, false
}

// mostRecentUpstreamCheckpoint returns the checkpoint id of whichever
// dependency completed last (highest completion-order), the predecessor
// this task's own checkpoint seals against.
func (r *run) mostRecentUpstreamCheckpoint(n Node) string {
	var best string
	var bestOrder uint64
	for _, dep := range n.DependsOn {
		st, ok := r.reg.Get(dep)
		if !ok || st.Checkpoint == "" {
			continue
		}
		if st.CompletionOrder >= bestOrder {
			bestOrder = st.CompletionOrder
			best = st.Checkpoint
		}
	}
	return best
}

// rollback walks the predecessor-checkpoint chain from failedID
// backward, stopping at the first checkpoint the verifier still
// reports VALID, then marks every downstream task ROLLED_BACK and
// discards its payload.
func (r *run) rollback(failedID string) {
	predecessor := r.mostRecentUpstreamCheckpointByID(failedID)
	var lastGood string
	if predecessor != "" {
		for _, cp := range r.opts.Checkpoints.Chain(predecessor) {
			if r.opts.Checkpoints.Verify(cp.ID, cp.Snapshot) == checkpoint.VALID {
				lastGood = cp.ID
				break
			}
		}
	}

	visited := map[string]bool{failedID: true}
	queue := []string{failedID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, down := range r.edges[id] {
			if visited[down] {
				continue
			}
			visited[down] = true
			queue = append(queue, down)
			var rolledBack bool
			r.reg.mutate(down, func(st *TaskState) {
				if st.Status == StatusSucceeded || st.Status == StatusRunning || st.Status == StatusReady || st.Status == StatusPending {
					st.Status = StatusRolledBack
					st.Output = nil
					rolledBack = true
				}
			})
			if rolledBack {
				r.emit(EventRollback, down, map[string]any{"triggered_by": failedID, "last_good_checkpoint": lastGood})
			}
		}
	}

	slog.Warn("orchestrator: rollback executed", "task_id", failedID, "last_good_checkpoint", lastGood)
}

func (r *run) mostRecentUpstreamCheckpointByID(id string) string {
	n, ok := r.nodes[id]
	if !ok {
		return ""
	}
	return r.mostRecentUpstreamCheckpoint(n)
}

// snapshot returns a non-blocking read of every task's current state.
func (r *run) snapshot() Snapshot {
	r.mu.Lock()
	done := r.done
	failed := r.failed
	r.mu.Unlock()
	return Snapshot{RunID: r.id, Tasks: r.reg.All(), Done: done, Failed: failed}
}
