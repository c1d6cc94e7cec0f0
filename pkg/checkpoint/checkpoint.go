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

// Package checkpoint implements the state verifier: it creates, stores,
// and verifies checkpoints, maintains a predecessor-hash chain, and
// enforces TTL-based liveness. It does not know about tasks, agents, or
// the scheduler - it only knows about snapshots and hashes.
//
// # Scope
//
// Checkpoints are held in-memory for the TTL window only. Durable
// storage of checkpoints beyond that window, and distributed
// replication of the checkpoint store, are out of scope.
package checkpoint

import (
	"time"

	"github.com/kadirpekel/contentgraph/pkg/merkle"
)

// Verdict is the result of verifying a checkpoint against a current
// snapshot.
type Verdict string

const (
	VALID         Verdict = "VALID"
	EXPIRED       Verdict = "EXPIRED"
	HASH_MISMATCH Verdict = "HASH_MISMATCH"
	NOT_FOUND     Verdict = "NOT_FOUND"
)

// Checkpoint is a hash-and-Merkle-bound snapshot of state at a task
// boundary, with a TTL.
type Checkpoint struct {
	ID        string
	CreatedAt time.Time
	Snapshot  any

	StateHash  [32]byte
	MerkleRoot [32]byte

	// PredecessorHash is the StateHash of the most recently-sealed
	// upstream checkpoint, or nil for a root task.
	PredecessorHash *[32]byte

	TTL time.Duration
}

// Age returns how long ago the checkpoint was created.
func (c *Checkpoint) Age() time.Duration {
	return time.Since(c.CreatedAt)
}

// IsLive reports whether the checkpoint is within its TTL window.
func (c *Checkpoint) IsLive() bool {
	if c.TTL <= 0 {
		return true
	}
	return c.Age() < c.TTL
}

// leavesOf flattens a snapshot into an ordered list of leaf hashes for
// Merkle construction. A top-level []any contributes one leaf per
// element (in order), giving callers per-element inclusion proofs;
// anything else is canonically encoded as a single leaf.
func leavesOf(snapshot any) ([][32]byte, error) {
	if items, ok := snapshot.([]any); ok && len(items) > 0 {
		leaves := make([][32]byte, len(items))
		for i, item := range items {
			h, err := merkle.HashPayload(item)
			if err != nil {
				return nil, err
			}
			leaves[i] = h
		}
		return leaves, nil
	}

	h, err := merkle.HashPayload(snapshot)
	if err != nil {
		return nil, err
	}
	return [][32]byte{h}, nil
}
