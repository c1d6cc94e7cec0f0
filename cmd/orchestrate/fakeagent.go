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
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

// stdioFakeAgent is a demonstration Agent: in interactive mode it
// prompts the operator on stdout and reads the task's output body as a
// line from stdin, so a manifest can be driven by a human standing in
// for a real model call; in non-interactive mode it fabricates a
// deterministic response so `orchestrate run` works unattended (CI,
// scripted demos).
type stdioFakeAgent struct {
	id          string
	interactive bool

	mu   sync.Mutex
	in   *bufio.Scanner
}

func newStdioFakeAgent(id string, interactive bool, scanner *bufio.Scanner) *stdioFakeAgent {
	return &stdioFakeAgent{id: id, interactive: interactive, in: scanner}
}

func (a *stdioFakeAgent) Invoke(ctx context.Context, taskID string, in orchestrator.InputSet, deadline time.Time) (orchestrator.Payload, error) {
	upstream := make([]string, 0, len(in))
	for id := range in {
		upstream = append(upstream, id)
	}

	body := fmt.Sprintf("[%s] result for %s (upstream=%v)", a.id, taskID, upstream)
	if a.interactive {
		line, err := a.readLine(taskID)
		if err != nil {
			return orchestrator.Payload{}, fmt.Errorf("stdio agent %s: %w", a.id, err)
		}
		if line != "" {
			body = line
		}
	}

	return orchestrator.Payload{
		Body:           map[string]any{"text": body},
		Confidence:     0.95,
		UpstreamIDs:    upstream,
		ReasoningTrace: "stdio-fake agent: operator or scripted default response",
		HasSuccess:     true,
		Success:        true,
	}, nil
}

func (a *stdioFakeAgent) readLine(taskID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Printf("agent %s > enter output for task %s: ", a.id, taskID)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	return a.in.Text(), nil
}
