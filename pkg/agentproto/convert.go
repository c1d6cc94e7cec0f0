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

// Package agentproto wraps the out-of-process agent transports (A2A
// peers, go-plugin subprocesses, plain gRPC services) behind
// orchestrator.Agent, so the scheduler never has to know whether a
// node's agent lives in-process or across a wire.
package agentproto

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// wirePayload is the over-the-wire shape of one InputSet entry. It
// flattens orchestrator.Payload's [32]byte content hash to hex and its
// timestamp to RFC3339 so both the JSON (A2A) and structpb (gRPC)
// encodings can carry it without a custom binary codec.
type wirePayload struct {
	TaskID         string         `json:"task_id"`
	AgentID        string         `json:"agent_id"`
	CreatedAt      string         `json:"created_at"`
	Body           any            `json:"body"`
	ContentHash    string         `json:"content_hash"`
	Confidence     float64        `json:"confidence"`
	UpstreamIDs    []string       `json:"upstream_ids"`
	ReasoningTrace string         `json:"reasoning_trace"`
	Alternatives   []string       `json:"alternatives"`
	Metadata       map[string]any `json:"metadata"`
	Success        bool           `json:"success"`
	HasSuccess     bool           `json:"has_success"`
}

type wireRequest struct {
	TaskID   string                 `json:"task_id"`
	Deadline string                 `json:"deadline"`
	Inputs   map[string]wirePayload `json:"inputs"`
}

func encodePayload(p orchestrator.Payload) wirePayload {
	return wirePayload{
		TaskID:         p.TaskID,
		AgentID:        p.AgentID,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339Nano),
		Body:           p.Body,
		ContentHash:    hex.EncodeToString(p.ContentHash[:]),
		Confidence:     p.Confidence,
		UpstreamIDs:    p.UpstreamIDs,
		ReasoningTrace: p.ReasoningTrace,
		Alternatives:   p.Alternatives,
		Metadata:       p.Metadata,
		Success:        p.Success,
		HasSuccess:     p.HasSuccess,
	}
}

func decodePayload(w wirePayload) (orchestrator.Payload, error) {
	p := orchestrator.Payload{
		TaskID:         w.TaskID,
		AgentID:        w.AgentID,
		Body:           w.Body,
		Confidence:     w.Confidence,
		UpstreamIDs:    w.UpstreamIDs,
		ReasoningTrace: w.ReasoningTrace,
		Alternatives:   w.Alternatives,
		Metadata:       w.Metadata,
		Success:        w.Success,
		HasSuccess:     w.HasSuccess,
	}
	if w.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
		if err != nil {
			return orchestrator.Payload{}, fmt.Errorf("agentproto: decode created_at: %w", err)
		}
		p.CreatedAt = t
	}
	if w.ContentHash != "" {
		raw, err := hex.DecodeString(w.ContentHash)
		if err != nil {
			return orchestrator.Payload{}, fmt.Errorf("agentproto: decode content_hash: %w", err)
		}
		if len(raw) != len(p.ContentHash) {
			return orchestrator.Payload{}, fmt.Errorf("agentproto: content_hash wrong length %d", len(raw))
		}
		copy(p.ContentHash[:], raw)
	}
	return p, nil
}

func encodeRequest(taskID string, in orchestrator.InputSet, deadline time.Time) wireRequest {
	inputs := make(map[string]wirePayload, len(in))
	for id, p := range in {
		inputs[id] = encodePayload(p)
	}
	return wireRequest{TaskID: taskID, Deadline: deadline.Format(time.RFC3339Nano), Inputs: inputs}
}
