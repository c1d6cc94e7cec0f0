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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// A2APeer invokes a remote agent reachable over the Agent-to-Agent
// protocol: an HTTP endpoint identified by a target agent id, with an
// optional bearer token for authenticated peers. One HTTP round trip
// per Invoke call; no streaming or card-caching, unlike the teacher's
// a2a client, since a DAG task's single request/response shape doesn't
// need either.
type A2APeer struct {
	AgentID       string // local agent id (Options.Agents key)
	TargetAgentID string // remote agent id the peer addresses this node by
	URL           string
	Token         string
	HTTPClient    *http.Client
}

// NewA2APeer constructs a peer pointed at url, defaulting TargetAgentID
// to agentID when the remote doesn't use a different routing id.
func NewA2APeer(agentID, targetAgentID, url, token string) (*A2APeer, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agentproto: a2a peer: agent id required")
	}
	if url == "" {
		return nil, fmt.Errorf("agentproto: a2a peer: url required")
	}
	if targetAgentID == "" {
		targetAgentID = agentID
	}
	return &A2APeer{
		AgentID:       agentID,
		TargetAgentID: targetAgentID,
		URL:           url,
		Token:         token,
		HTTPClient:    &http.Client{},
	}, nil
}

// Invoke implements orchestrator.Agent by POSTing the task's inputs to
// the peer's message-send endpoint and decoding its response payload.
func (p *A2APeer) Invoke(ctx context.Context, taskID string, in orchestrator.InputSet, deadline time.Time) (orchestrator.Payload, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(encodeRequest(taskID, in, deadline))
	if err != nil {
		return orchestrator.Payload{}, fmt.Errorf("agentproto: a2a: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/agents/%s/message:send", p.URL, p.TargetAgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return orchestrator.Payload{}, fmt.Errorf("agentproto: a2a: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return orchestrator.Payload{}, fmt.Errorf("agentproto: a2a: call %s: %w", p.TargetAgentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orchestrator.Payload{}, fmt.Errorf("agentproto: a2a: peer %s returned status %d", p.TargetAgentID, resp.StatusCode)
	}

	var w wirePayload
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return orchestrator.Payload{}, fmt.Errorf("agentproto: a2a: decode response: %w", err)
	}
	return decodePayload(w)
}

// Close satisfies resource-cleanup callers; the underlying http.Client
// owns no persistent connection worth tearing down explicitly.
func (p *A2APeer) Close() error { return nil }
