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

package agentproto

import (
	"testing"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	p := orchestrator.Payload{
		TaskID:         "draft",
		AgentID:        "writer",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		Body:           map[string]any{"text": "hello"},
		ContentHash:    [32]byte{1, 2, 3, 4},
		Confidence:     0.82,
		UpstreamIDs:    []string{"research"},
		ReasoningTrace: "because",
		Alternatives:   []string{"alt1"},
		Metadata:       map[string]any{"k": "v"},
		Success:        true,
		HasSuccess:     true,
	}

	got, err := decodePayload(encodePayload(p))
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}

	if got.TaskID != p.TaskID || got.AgentID != p.AgentID {
		t.Fatalf("task/agent id mismatch: got %+v", got)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("created_at mismatch: got %v want %v", got.CreatedAt, p.CreatedAt)
	}
	if got.ContentHash != p.ContentHash {
		t.Errorf("content_hash mismatch: got %x want %x", got.ContentHash, p.ContentHash)
	}
	if got.Confidence != p.Confidence {
		t.Errorf("confidence mismatch: got %v want %v", got.Confidence, p.Confidence)
	}
	if len(got.UpstreamIDs) != 1 || got.UpstreamIDs[0] != "research" {
		t.Errorf("upstream_ids mismatch: got %v", got.UpstreamIDs)
	}
	if !got.Success || !got.HasSuccess {
		t.Errorf("success flags lost: got %+v", got)
	}
}

func TestDecodePayloadBadContentHash(t *testing.T) {
	w := wirePayload{ContentHash: "not-hex"}
	if _, err := decodePayload(w); err == nil {
		t.Fatal("expected error for malformed content_hash")
	}
}

func TestDecodePayloadWrongLengthContentHash(t *testing.T) {
	w := wirePayload{ContentHash: "aabb"}
	if _, err := decodePayload(w); err == nil {
		t.Fatal("expected error for short content_hash")
	}
}

func TestEncodeRequestCarriesAllInputs(t *testing.T) {
	in := orchestrator.InputSet{
		"research": {TaskID: "research", Body: "r"},
		"critique": {TaskID: "critique", Body: "c"},
	}
	deadline := time.Now().Add(time.Minute)

	req := encodeRequest("publish", in, deadline)
	if req.TaskID != "publish" {
		t.Errorf("task id mismatch: got %s", req.TaskID)
	}
	if len(req.Inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(req.Inputs))
	}
	if req.Deadline == "" {
		t.Error("expected non-empty deadline string")
	}
}
