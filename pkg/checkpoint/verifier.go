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

package checkpoint

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/merkle"
)

// entry pairs a checkpoint with its own Merkle tree so VerifyLeaf can
// re-derive inclusion proofs without recomputing the tree each call.
type entry struct {
	checkpoint *Checkpoint
	tree       *merkle.Tree
}

// Verifier creates, stores, and verifies checkpoints. It is safe for
// concurrent use: a single RWMutex guards the whole checkpoint map, so
// concurrent reads share it while every write excludes all other
// access. There is no per-key locking; operations on distinct
// checkpoint ids contend on that one lock.
type Verifier struct {
	cfg *Config

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewVerifier constructs a Verifier. A nil cfg is replaced with
// defaults.
func NewVerifier(cfg *Config) *Verifier {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	return &Verifier{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Create computes the state hash and Merkle root of snapshot, records
// the creation timestamp, stores the checkpoint under id, and returns
// it. A ttl of zero uses the verifier's configured default.
func (v *Verifier) Create(id string, snapshot any, ttl time.Duration, predecessor *string) (*Checkpoint, error) {
	if ttl <= 0 {
		ttl = v.cfg.DefaultTTLDuration()
	}

	leaves, err := leavesOf(snapshot)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: hash snapshot for %q: %w", id, err)
	}
	tree := merkle.BuildTree(leaves)
	stateHash, err := merkle.HashPayload(snapshot)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: hash snapshot for %q: %w", id, err)
	}

	var predHash *[32]byte
	if predecessor != nil {
		v.mu.RLock()
		if pe, ok := v.entries[*predecessor]; ok {
			h := pe.checkpoint.StateHash
			predHash = &h
		}
		v.mu.RUnlock()
	}

	cp := &Checkpoint{
		ID:              id,
		CreatedAt:       time.Now(),
		Snapshot:        snapshot,
		StateHash:       stateHash,
		MerkleRoot:      tree.Root,
		PredecessorHash: predHash,
		TTL:             ttl,
	}

	v.mu.Lock()
	v.entries[id] = &entry{checkpoint: cp, tree: tree}
	v.mu.Unlock()

	return cp, nil
}

// Verify reports whether the checkpoint stored under id is still
// trustworthy against current. It never panics and never returns an
// error - the verdict itself carries the failure mode.
func (v *Verifier) Verify(id string, current any) Verdict {
	v.mu.RLock()
	e, ok := v.entries[id]
	v.mu.RUnlock()

	if !ok {
		return NOT_FOUND
	}
	if !e.checkpoint.IsLive() {
		slog.Warn("checkpoint expired", "checkpoint_id", id, "age", e.checkpoint.Age())
		return EXPIRED
	}

	currentHash, err := merkle.HashPayload(current)
	if err != nil {
		slog.Warn("checkpoint verify: failed to hash current snapshot", "checkpoint_id", id, "error", err)
		return HASH_MISMATCH
	}
	if currentHash != e.checkpoint.StateHash {
		slog.Warn("checkpoint corruption detected",
			"checkpoint_id", id,
			"stored_hash", fmt.Sprintf("%x", e.checkpoint.StateHash),
			"current_hash", fmt.Sprintf("%x", currentHash))
		return HASH_MISMATCH
	}
	return VALID
}

// VerifyLeaf validates a single leaf against the stored Merkle root
// using an inclusion proof computed at Create time.
func (v *Verifier) VerifyLeaf(id string, index int, leaf any, proof []merkle.ProofStep) bool {
	v.mu.RLock()
	e, ok := v.entries[id]
	v.mu.RUnlock()
	if !ok {
		return false
	}

	h, err := merkle.HashPayload(leaf)
	if err != nil {
		return false
	}
	return merkle.VerifyProof(h, proof, e.tree.Root)
}

// Proof returns the inclusion proof for the leaf at index within the
// checkpoint's snapshot, for callers that want to construct the proof
// themselves rather than recompute it ad hoc.
func (v *Verifier) Proof(id string, index int) ([]merkle.ProofStep, error) {
	v.mu.RLock()
	e, ok := v.entries[id]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("checkpoint: %q not found", id)
	}
	return e.tree.Proof(index)
}

// GCExpired removes checkpoints whose age exceeds their TTL. It is
// idempotent and returns the count removed.
func (v *Verifier) GCExpired() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	removed := 0
	for id, e := range v.entries {
		if !e.checkpoint.IsLive() {
			delete(v.entries, id)
			removed++
		}
	}
	return removed
}

// Get returns the checkpoint stored under id, if any.
func (v *Verifier) Get(id string) (*Checkpoint, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.entries[id]
	if !ok {
		return nil, false
	}
	return e.checkpoint, true
}

// Chain walks predecessor links starting at id and returns the
// checkpoints from id back to the earliest reachable ancestor, in that
// order (id first). Used by the rollback policy to find the first VALID
// ancestor.
func (v *Verifier) Chain(id string) []*Checkpoint {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var chain []*Checkpoint
	current, ok := v.entries[id]
	for ok {
		chain = append(chain, current.checkpoint)
		if current.checkpoint.PredecessorHash == nil {
			break
		}
		next, found := v.findByStateHash(*current.checkpoint.PredecessorHash)
		if !found {
			break
		}
		current, ok = next, true
	}
	return chain
}

// findByStateHash is a linear scan; checkpoint chains in this core are
// bounded by one run's task count, so this trades a small index for
// simplicity. Must be called with v.mu held.
func (v *Verifier) findByStateHash(hash [32]byte) (*entry, bool) {
	for _, e := range v.entries {
		if e.checkpoint.StateHash == hash {
			return e, true
		}
	}
	return nil, false
}
