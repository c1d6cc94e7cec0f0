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
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

func TestStdioFakeAgentNonInteractive(t *testing.T) {
	agent := newStdioFakeAgent("writer", false, bufio.NewScanner(strings.NewReader("")))

	in := orchestrator.InputSet{"research": {TaskID: "research"}}
	out, err := agent.Invoke(t.Context(), "draft", in, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if !out.HasSuccess || !out.Success {
		t.Errorf("expected fake agent to report success, got %+v", out)
	}
	body, ok := out.Body.(map[string]any)
	if !ok {
		t.Fatalf("expected map body, got %T", out.Body)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, "writer") || !strings.Contains(text, "draft") {
		t.Errorf("expected fabricated body to reference agent and task id, got %q", text)
	}
	if len(out.UpstreamIDs) != 1 || out.UpstreamIDs[0] != "research" {
		t.Errorf("expected upstream ids to echo input keys, got %v", out.UpstreamIDs)
	}
}

func TestStdioFakeAgentInteractiveUsesOperatorLine(t *testing.T) {
	agent := newStdioFakeAgent("writer", true, bufio.NewScanner(strings.NewReader("operator response\n")))

	out, err := agent.Invoke(t.Context(), "draft", orchestrator.InputSet{}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	body, ok := out.Body.(map[string]any)
	if !ok {
		t.Fatalf("expected map body, got %T", out.Body)
	}
	if body["text"] != "operator response" {
		t.Errorf("expected operator line to override fabricated body, got %q", body["text"])
	}
}

func TestStdioFakeAgentInteractiveEmptyLineFallsBack(t *testing.T) {
	agent := newStdioFakeAgent("writer", true, bufio.NewScanner(strings.NewReader("\n")))

	out, err := agent.Invoke(t.Context(), "draft", orchestrator.InputSet{}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	body, ok := out.Body.(map[string]any)
	if !ok {
		t.Fatalf("expected map body, got %T", out.Body)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, "draft") {
		t.Errorf("expected fabricated fallback body, got %q", text)
	}
}
