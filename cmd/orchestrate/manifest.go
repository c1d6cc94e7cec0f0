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

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// manifest is the YAML-facing DTO for a DAG submission: orchestrator.Node
// has no yaml tags of its own (it's the scheduler's internal contract,
// not a serialization format), so the CLI owns the mapping between a
// human-edited manifest file and the Node values Submit expects.
type manifest struct {
	Tasks []manifestTask `yaml:"tasks"`
}

type manifestTask struct {
	ID               string   `yaml:"id"`
	DependsOn        []string `yaml:"depends_on,omitempty"`
	AgentID          string   `yaml:"agent"`
	Role             string   `yaml:"role,omitempty"`
	Parallelism      string   `yaml:"parallelism,omitempty"`
	TimeoutSeconds   int      `yaml:"timeout_seconds,omitempty"`
	MaxRetries       int      `yaml:"max_retries,omitempty"`
	Idempotent       bool     `yaml:"idempotent,omitempty"`
	HighStakes       bool     `yaml:"high_stakes,omitempty"`
	AdversaryAgentID string   `yaml:"adversary_agent,omitempty"`
	Required         []string `yaml:"required_output_fields,omitempty"`

	// RemoteURL, if set, routes this task's agent to a real A2A peer at
	// that base URL (see pkg/agentproto.NewA2APeer) instead of the CLI's
	// stdio-fake agent. RemoteToken is sent as a bearer token if set.
	RemoteURL   string `yaml:"remote_url,omitempty"`
	RemoteToken string `yaml:"remote_token,omitempty"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	if len(m.Tasks) == 0 {
		return nil, fmt.Errorf("manifest: %s declares no tasks", path)
	}
	return &m, nil
}

// nodes converts the manifest's tasks into the orchestrator.Node values
// Submit expects, defaulting timeout/parallelism the way a hand-edited
// manifest usually leaves unset.
func (m *manifest) nodes() []orchestrator.Node {
	out := make([]orchestrator.Node, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		timeout := time.Duration(t.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		out = append(out, orchestrator.Node{
			ID:               t.ID,
			DependsOn:        t.DependsOn,
			Role:             orchestrator.AgentRole(defaultString(t.Role, string(orchestrator.RoleGeneric))),
			Parallelism:      orchestrator.ParallelHint(defaultString(t.Parallelism, string(orchestrator.CanParallelize))),
			OutputSchema:     &orchestrator.Schema{Required: t.Required},
			Timeout:          timeout,
			MaxRetries:       t.MaxRetries,
			Idempotent:       t.Idempotent,
			HighStakes:       t.HighStakes,
			AgentID:          t.AgentID,
			AdversaryAgentID: t.AdversaryAgentID,
		})
	}
	return out
}

// agentIDs returns the distinct agent ids the manifest references, the
// set the CLI needs a fake agent for.
func (m *manifest) agentIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, t := range m.Tasks {
		for _, id := range []string{t.AgentID, t.AdversaryAgentID} {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// remoteAgents returns, for every task whose manifest entry sets
// remote_url, the agent id mapped to its (url, token) pair - the set
// the CLI wires an agentproto.A2APeer for instead of a stdio fake agent.
func (m *manifest) remoteAgents() map[string][2]string {
	out := make(map[string][2]string)
	for _, t := range m.Tasks {
		if t.RemoteURL != "" {
			out[t.AgentID] = [2]string{t.RemoteURL, t.RemoteToken}
		}
	}
	return out
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
