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
	"math"
	"testing"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/breaker"
	"github.com/kadirpekel/contentgraph/pkg/checkpoint"
)

// genAgent is a deterministic test agent: it copies the minimum
// upstream confidence, multiplies by opConfidence, and echoes a body.
func genAgent(opConfidence float64) Agent {
	return AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		upstream := make([]string, 0, len(in))
		for id := range in {
			upstream = append(upstream, id)
		}
		return Payload{
			Body:        map[string]any{"task": taskID},
			Confidence:  opConfidence,
			UpstreamIDs: upstream,
			HasSuccess:  true,
			Success:     true,
		}, nil
	})
}

func baseOptions(agents map[string]Agent) *Options {
	return &Options{
		Agents:                      agents,
		Breakers:                    breaker.NewRegistry(nil),
		Checkpoints:                 checkpoint.NewVerifier(nil),
		FanoutLimit:                 4,
		BackoffSchedule:             []int{0, 0, 0},
		ConfidenceFloor:             0.1,
		MaxLowConfidenceDepth:       10,
		DepthDecayBase:              0.9,
		SycophancyThreshold:         0.30,
		RiskCeiling:                 5,
		DisagreementEmbeddingWeight: 0.7,
		DisagreementRiskWeight:      0.3,
	}
}

func mustRun(t *testing.T, nodes []Node, opts *Options) *Result {
	t.Helper()
	h, err := Submit(nodes, nil, opts)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := Run(context.Background(), h)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func TestLinearChainConfidenceDecay(t *testing.T) {
	agents := map[string]Agent{"a": genAgent(0.95)}
	nodes := []Node{
		{ID: "t1", AgentID: "a", Timeout: time.Second, MaxRetries: 0},
		{ID: "t2", AgentID: "a", DependsOn: []string{"t1"}, Timeout: time.Second},
		{ID: "t3", AgentID: "a", DependsOn: []string{"t2"}, Timeout: time.Second},
	}
	opts := baseOptions(agents)
	res := mustRun(t, nodes, opts)

	if res.Failed {
		t.Fatalf("expected success, got failed tasks: %+v", res.Tasks)
	}
	t3 := res.Tasks["t3"]
	if t3.Status != StatusSucceeded {
		t.Fatalf("expected t3 succeeded, got %v (%v)", t3.Status, t3.Err)
	}

	// out = 1.0 * 0.95^3 * (0.9^0 * 0.9^1 * 0.9^2)
	expected := math.Pow(0.95, 3) * math.Pow(0.9, 0) * math.Pow(0.9, 1) * math.Pow(0.9, 2)
	got := t3.Output.Confidence
	if math.Abs(got-expected) > 1e-9 {
		t.Fatalf("expected confidence %.6f, got %.6f", expected, got)
	}
}

func TestForkJoinLevelsAndMinConfidence(t *testing.T) {
	agents := map[string]Agent{"a": genAgent(0.9), "b": genAgent(0.7)}
	nodes := []Node{
		{ID: "A", AgentID: "a", Timeout: time.Second},
		{ID: "B", AgentID: "a", DependsOn: []string{"A"}, Timeout: time.Second, Parallelism: CanParallelize},
		{ID: "C", AgentID: "b", DependsOn: []string{"A"}, Timeout: time.Second, Parallelism: CanParallelize},
		{ID: "D", AgentID: "a", DependsOn: []string{"B", "C"}, Timeout: time.Second},
	}
	opts := baseOptions(agents)
	res := mustRun(t, nodes, opts)

	if res.Failed {
		t.Fatalf("expected success, got %+v", res.Tasks)
	}
	for _, id := range []string{"A", "B", "C", "D"} {
		if res.Tasks[id].Status != StatusSucceeded {
			t.Fatalf("expected %s succeeded, got %v (%v)", id, res.Tasks[id].Status, res.Tasks[id].Err)
		}
	}

	b := res.Tasks["B"].Output.Confidence
	c := res.Tasks["C"].Output.Confidence
	d := res.Tasks["D"].Output.Confidence
	minBC := math.Min(b, c)
	expected := minBC * 0.9 * math.Pow(0.9, 2)
	if math.Abs(d-expected) > 1e-9 {
		t.Fatalf("expected D confidence %.6f, got %.6f", expected, d)
	}
}

func TestCircularDependencyRejected(t *testing.T) {
	nodes := []Node{
		{ID: "x", AgentID: "a", DependsOn: []string{"y"}},
		{ID: "y", AgentID: "a", DependsOn: []string{"x"}},
	}
	opts := baseOptions(map[string]Agent{"a": genAgent(0.9)})
	_, err := Submit(nodes, nil, opts)
	if err == nil {
		t.Fatal("expected circular dependency error")
	}
	te, ok := err.(*TaskError)
	if !ok || te.Kind != ErrCircularDependency {
		t.Fatalf("expected ErrCircularDependency, got %v", err)
	}
}

func TestHallucinatedDependencyRejectsSubmission(t *testing.T) {
	nodes := []Node{
		{ID: "t1", AgentID: "a", DependsOn: []string{"does-not-exist"}},
	}
	opts := baseOptions(map[string]Agent{"a": genAgent(0.9)})
	_, err := Submit(nodes, nil, opts)
	te, ok := err.(*TaskError)
	if !ok || te.Kind != ErrHallucinatedDep {
		t.Fatalf("expected ErrHallucinatedDep, got %v", err)
	}
}

func TestIntegrityViolationFailsWithoutRetryAndRollsBack(t *testing.T) {
	agents := map[string]Agent{"a": genAgent(0.9)}
	nodes := []Node{
		{ID: "t1", AgentID: "a", Timeout: time.Second},
		{ID: "t2", AgentID: "a", DependsOn: []string{"t1"}, Timeout: time.Second},
	}
	opts := baseOptions(agents)

	tampered := map[string]Payload{
		"t1": {
			Body:        map[string]any{"seed": true},
			ContentHash: [32]byte{0xFF}, // deliberately wrong hash for this body
			Confidence:  0.9,
		},
	}

	h, err := Submit(nodes, tampered, opts)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := Run(context.Background(), h)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !res.Failed {
		t.Fatal("expected run to be marked failed")
	}
	t1 := res.Tasks["t1"]
	if t1.Status != StatusFailed || t1.Err == nil || t1.Err.Kind != ErrIntegrityViolation {
		t.Fatalf("expected t1 FAILED with INTEGRITY_VIOLATION, got %v %v", t1.Status, t1.Err)
	}
	if t1.Attempt != 0 {
		t.Fatalf("expected no retries for integrity violation, attempt=%d", t1.Attempt)
	}
	if res.Tasks["t2"].Status != StatusRolledBack {
		t.Fatalf("expected t2 rolled back after t1 failure, got %v", res.Tasks["t2"].Status)
	}
}

func TestConfidenceCollapseFailsAndNoCheckpointSealed(t *testing.T) {
	weak := genAgent(0.01)
	agents := map[string]Agent{"weak": weak}
	nodes := []Node{{ID: "t1", AgentID: "weak", Timeout: time.Second}}
	opts := baseOptions(agents)
	opts.ConfidenceFloor = 0.5
	res := mustRun(t, nodes, opts)

	t1 := res.Tasks["t1"]
	if t1.Status != StatusFailed || t1.Err.Kind != ErrConfidenceCollapse {
		t.Fatalf("expected CONFIDENCE_COLLAPSE, got %v %v", t1.Status, t1.Err)
	}
	if _, ok := opts.Checkpoints.Get("t1"); ok {
		t.Fatal("expected no checkpoint sealed on confidence collapse")
	}
}

func TestPhantomSuccessFails(t *testing.T) {
	silent := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{Body: map[string]any{"task": taskID}, Confidence: 0.9}, nil
	})
	agents := map[string]Agent{"silent": silent}
	nodes := []Node{{ID: "t1", AgentID: "silent", Timeout: time.Second}}
	opts := baseOptions(agents)
	res := mustRun(t, nodes, opts)

	t1 := res.Tasks["t1"]
	if t1.Status != StatusFailed || t1.Err.Kind != ErrPhantomSuccess {
		t.Fatalf("expected TOOL_PHANTOM_SUCCESS, got %v %v", t1.Status, t1.Err)
	}
}

func TestBreakerOpensAfterConsecutiveFailuresAcrossTasks(t *testing.T) {
	failing := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{}, context.DeadlineExceeded
	})
	agents := map[string]Agent{"flaky": failing}
	opts := baseOptions(agents)
	opts.Breakers = breaker.NewRegistry(&breaker.Config{FailureThreshold: 2, OpenTimeout: 60, SuccessThreshold: 2})

	// Drive the breaker directly, mirroring what repeated task dispatch
	// against the same agent id would do.
	br := opts.Breakers.Get("flaky")
	for i := 0; i < 2; i++ {
		_ = br.CallThrough(context.Background(), func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
	}
	if br.State() != breaker.OPEN {
		t.Fatalf("expected breaker OPEN after failure threshold, got %v", br.State())
	}

	nodes := []Node{{ID: "t1", AgentID: "flaky", Timeout: time.Second}}
	h, err := Submit(nodes, nil, opts)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, _ := Run(context.Background(), h)
	t1 := res.Tasks["t1"]
	if t1.Err == nil || t1.Err.Kind != ErrBreakerOpen {
		t.Fatalf("expected BREAKER_OPEN, got %v", t1.Err)
	}
}

func TestSycophanticNullAdversaryFails(t *testing.T) {
	primary := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{Body: "identical output", Confidence: 0.9, ReasoningTrace: "careful reasoning", HasSuccess: true, Success: true}, nil
	})
	nullAdversary := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{Body: "identical output", Confidence: 0.9, ReasoningTrace: "", HasSuccess: true, Success: true}, nil
	})
	agents := map[string]Agent{"primary": primary, "adversary": nullAdversary}
	nodes := []Node{{ID: "t1", AgentID: "primary", AdversaryAgentID: "adversary", HighStakes: true, Timeout: time.Second}}

	opts := baseOptions(agents)
	hashing := stubEmbedder{}
	opts.Embeddings = hashing

	res := mustRun(t, nodes, opts)
	t1 := res.Tasks["t1"]
	if t1.Status != StatusFailed || t1.Err.Kind != ErrSycophancy {
		t.Fatalf("expected SYCOPHANCY_SUSPECTED, got %v %v", t1.Status, t1.Err)
	}
}

func TestCheckpointPastTTLVerifiesExpired(t *testing.T) {
	v := checkpoint.NewVerifier(&checkpoint.Config{DefaultTTL: 1})
	if _, err := v.Create("cp1", map[string]any{"x": 1}, time.Millisecond, nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if verdict := v.Verify("cp1", map[string]any{"x": 1}); verdict != checkpoint.EXPIRED {
		t.Fatalf("expected EXPIRED, got %v", verdict)
	}
}

func TestBreakerTripsThroughRealTaskDispatch(t *testing.T) {
	failing := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{}, context.DeadlineExceeded
	})
	agents := map[string]Agent{"flaky": failing}
	opts := baseOptions(agents)
	opts.Breakers = breaker.NewRegistry(&breaker.Config{FailureThreshold: 2, OpenTimeout: 60, SuccessThreshold: 2})
	opts.BackoffSchedule = []int{0}

	// t1 and t2 are independent and share the flaky agent, so both
	// dispatch (and fail) in the same level - tripping the breaker through
	// ordinary scheduling rather than by poking the Breaker directly.
	nodes := []Node{
		{ID: "t1", AgentID: "flaky", Timeout: time.Second},
		{ID: "t2", AgentID: "flaky", Timeout: time.Second},
	}
	mustRun(t, nodes, opts)

	if opts.Breakers.Get("flaky").State() != breaker.OPEN {
		t.Fatalf("expected breaker open after two failing dispatches, got %v", opts.Breakers.Get("flaky").State())
	}

	// t3 is a later submission against the same agent and breaker
	// registry; a task downstream of t1/t2 would be rolled back instead.
	res := mustRun(t, []Node{{ID: "t3", AgentID: "flaky", Timeout: time.Second}}, opts)
	t3 := res.Tasks["t3"]
	if t3.Err == nil || t3.Err.Kind != ErrBreakerOpen {
		t.Fatalf("expected t3 BREAKER_OPEN, got %v %v", t3.Status, t3.Err)
	}
}

func TestCheckpointChainWalksBackToUpstreamCheckpoint(t *testing.T) {
	agents := map[string]Agent{"a": genAgent(0.9)}
	nodes := []Node{
		{ID: "t1", AgentID: "a", Timeout: time.Second},
		{ID: "t2", AgentID: "a", DependsOn: []string{"t1"}, Timeout: time.Second},
	}
	opts := baseOptions(agents)
	res := mustRun(t, nodes, opts)

	if res.Failed {
		t.Fatalf("expected both tasks to succeed, got %+v", res.Tasks)
	}
	t1 := res.Tasks["t1"]
	if t1.Checkpoint == "" {
		t.Fatal("expected t1 to seal a checkpoint on success")
	}
	if verdict := opts.Checkpoints.Verify(t1.Checkpoint, t1.Output.Body); verdict != checkpoint.VALID {
		t.Fatalf("expected t1's own checkpoint to verify VALID, got %v", verdict)
	}

	chain := opts.Checkpoints.Chain(res.Tasks["t2"].Checkpoint)
	if len(chain) == 0 {
		t.Fatal("expected a non-empty checkpoint chain for t2")
	}
	lastGood := chain[len(chain)-1]
	if lastGood.ID != t1.Checkpoint {
		t.Fatalf("expected chain to bottom out at t1's checkpoint, got %s", lastGood.ID)
	}
}

func TestIdempotentTaskReturnsToPendingOnFailure(t *testing.T) {
	silent := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{Body: map[string]any{"task": taskID}, Confidence: 0.9}, nil // no success flag: phantom success
	})
	agents := map[string]Agent{"silent": silent}

	idempotent := []Node{{ID: "t1", AgentID: "silent", Idempotent: true, Timeout: time.Second}}
	res := mustRun(t, idempotent, baseOptions(agents))
	t1 := res.Tasks["t1"]
	if t1.Status != StatusPending {
		t.Fatalf("expected idempotent task to return to PENDING after a failed attempt, got %v (err=%v)", t1.Status, t1.Err)
	}

	onceOnly := []Node{{ID: "t1", AgentID: "silent", Idempotent: false, Timeout: time.Second}}
	res2 := mustRun(t, onceOnly, baseOptions(agents))
	t1b := res2.Tasks["t1"]
	if t1b.Status != StatusFailed {
		t.Fatalf("expected non-idempotent task to stay FAILED, got %v", t1b.Status)
	}
}

func TestRecordingSinkCapturesTaskTransitionsAndCheckpoints(t *testing.T) {
	agents := map[string]Agent{"a": genAgent(0.95)}
	nodes := []Node{
		{ID: "t1", AgentID: "a", Timeout: time.Second, MaxRetries: 0},
		{ID: "t2", AgentID: "a", DependsOn: []string{"t1"}, Timeout: time.Second},
	}

	sink := NewRecordingSink()
	opts := baseOptions(agents)
	opts.Sink = sink
	res := mustRun(t, nodes, opts)
	if res.Failed {
		t.Fatalf("expected run to succeed, got failures: %+v", res.Tasks)
	}

	transitions := sink.ByKind(EventTaskTransition)
	if len(transitions) == 0 {
		t.Fatal("expected at least one task transition event")
	}
	var sawRunning, sawSucceeded bool
	for _, ev := range transitions {
		switch ev.Data["status"] {
		case string(StatusRunning):
			sawRunning = true
		case string(StatusSucceeded):
			sawSucceeded = true
		}
	}
	if !sawRunning || !sawSucceeded {
		t.Errorf("expected RUNNING and SUCCEEDED transitions, got %+v", transitions)
	}

	checkpoints := sink.ByKind(EventCheckpointCreated)
	if len(checkpoints) != 2 {
		t.Fatalf("expected one checkpoint event per task, got %d", len(checkpoints))
	}

	events := sink.Events()
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Errorf("expected strictly increasing Seq, got %d after %d", events[i].Seq, events[i-1].Seq)
		}
	}
}

func TestNilSinkDefaultsToNoop(t *testing.T) {
	agents := map[string]Agent{"a": genAgent(0.95)}
	nodes := []Node{{ID: "t1", AgentID: "a", Timeout: time.Second}}
	opts := baseOptions(agents)
	opts.Sink = nil
	res := mustRun(t, nodes, opts)
	if res.Failed {
		t.Fatalf("expected run to succeed, got failures: %+v", res.Tasks)
	}
}

func TestRetryableAgentErrorSurfacesRetryingAndRecordsHistory(t *testing.T) {
	var calls int
	flaky := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		calls++
		if calls < 3 {
			return Payload{}, context.DeadlineExceeded
		}
		return Payload{Body: map[string]any{"task": taskID}, Confidence: 0.9, HasSuccess: true, Success: true}, nil
	})
	agents := map[string]Agent{"flaky": flaky}
	nodes := []Node{{ID: "t1", AgentID: "flaky", Timeout: time.Second, MaxRetries: 2}}

	sink := NewRecordingSink()
	opts := baseOptions(agents)
	opts.BackoffSchedule = []int{0, 0}
	opts.Sink = sink
	res := mustRun(t, nodes, opts)

	t1 := res.Tasks["t1"]
	if t1.Status != StatusSucceeded {
		t.Fatalf("expected t1 to eventually succeed, got %v (%v)", t1.Status, t1.Err)
	}
	if t1.Attempt != 2 {
		t.Fatalf("expected Attempt to land on the 2nd retry, got %d", t1.Attempt)
	}
	if len(t1.RetryHistory) != 2 {
		t.Fatalf("expected 2 recorded retry attempts, got %d: %+v", len(t1.RetryHistory), t1.RetryHistory)
	}
	for i, ra := range t1.RetryHistory {
		if ra.Kind != ErrAgentTransient {
			t.Errorf("retry %d: expected AGENT_TRANSIENT, got %v", i, ra.Kind)
		}
	}

	var sawRetrying bool
	for _, ev := range sink.ByKind(EventTaskTransition) {
		if ev.Data["status"] == string(StatusRetrying) {
			sawRetrying = true
		}
	}
	if !sawRetrying {
		t.Error("expected at least one RETRYING task transition event")
	}
}

func TestIntegrityViolationNeverRetries(t *testing.T) {
	agents := map[string]Agent{"a": genAgent(0.9)}
	nodes := []Node{{ID: "t1", AgentID: "a", Timeout: time.Second, MaxRetries: 3}}
	opts := baseOptions(agents)

	tampered := map[string]Payload{
		"t1": {Body: map[string]any{"seed": true}, ContentHash: [32]byte{0xFF}, Confidence: 0.9},
	}
	h, err := Submit(nodes, tampered, opts)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := Run(context.Background(), h)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	t1 := res.Tasks["t1"]
	if len(t1.RetryHistory) != 0 {
		t.Fatalf("expected no retry history for a non-retryable failure, got %+v", t1.RetryHistory)
	}
}

func TestSycophancyRiskCountTermFlagsHumanReview(t *testing.T) {
	// Primary and adversary produce identical text, so semanticDistance is
	// 0 and the entire disagreement score comes from the risk-count term:
	// an adversary that independently reasoned (non-empty ReasoningTrace,
	// so it isn't a null adversary) but still flagged RiskCeiling-or-more
	// distinct risks against the primary's output.
	identicalBody := "identical output"
	primary := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{Body: identicalBody, Confidence: 0.9, ReasoningTrace: "brief", HasSuccess: true, Success: true}, nil
	})
	adversary := AgentFunc(func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
		return Payload{
			Body:           identicalBody,
			Confidence:     0.9,
			ReasoningTrace: "independent analysis surfacing several concerns",
			FlaggedRisks:   []string{"unsupported claim", "missing citation", "overreach", "stale data", "scope creep"},
			HasSuccess:     true,
			Success:        true,
		}, nil
	})
	agents := map[string]Agent{"primary": primary, "adversary": adversary}
	nodes := []Node{{ID: "t1", AgentID: "primary", AdversaryAgentID: "adversary", HighStakes: true, Timeout: time.Second}}

	opts := baseOptions(agents)
	opts.Embeddings = stubEmbedder{}
	opts.RiskCeiling = 5
	opts.SycophancyThreshold = 0.2 // below DisagreementRiskWeight(0.3) * riskDistance(1.0)

	res := mustRun(t, nodes, opts)
	t1 := res.Tasks["t1"]
	if t1.Status != StatusSucceeded {
		t.Fatalf("expected t1 to succeed (human review is a flag, not a failure), got %v (%v)", t1.Status, t1.Err)
	}
	if !t1.Output.RequiresHumanReview() {
		t.Fatal("expected RequiresHumanReview to be set purely from the adversary's flagged-risk count")
	}
}

// stubEmbedder returns a fixed-length vector built from the text's
// first eight bytes, good enough to exercise the cosine-similarity path
// without pulling in a real embedding provider.
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 8)
	for i := range v {
		if i < len(text) {
			v[i] = float32(text[i])
		}
	}
	return v, nil
}
func (stubEmbedder) Dimension() int { return 8 }
func (stubEmbedder) Model() string  { return "stub" }
func (stubEmbedder) Close() error   { return nil }
