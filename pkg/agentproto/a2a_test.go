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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kadirpekel/contentgraph/pkg/orchestrator"
)

func TestNewA2APeerValidation(t *testing.T) {
	if _, err := NewA2APeer("", "", "http://x", ""); err == nil {
		t.Error("expected error for empty agent id")
	}
	if _, err := NewA2APeer("writer", "", "", ""); err == nil {
		t.Error("expected error for empty url")
	}
	p, err := NewA2APeer("writer", "", "http://x", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TargetAgentID != "writer" {
		t.Errorf("expected target agent id to default to agent id, got %s", p.TargetAgentID)
	}
}

func TestA2APeerInvoke(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path

		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("server: decode request: %v", err)
		}
		if req.TaskID != "draft" {
			t.Errorf("server: expected task id draft, got %s", req.TaskID)
		}

		reply := wirePayload{TaskID: "draft", Body: map[string]any{"text": "ok"}, Confidence: 0.9}
		json.NewEncoder(w).Encode(reply)
	}))
	defer srv.Close()

	peer, err := NewA2APeer("writer", "remote-writer", srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewA2APeer: %v", err)
	}

	out, err := peer.Invoke(t.Context(), "draft", orchestrator.InputSet{}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token header, got %q", gotAuth)
	}
	if gotPath != "/agents/remote-writer/message:send" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if out.TaskID != "draft" || out.Confidence != 0.9 {
		t.Errorf("unexpected payload: %+v", out)
	}
}

func TestA2APeerInvokeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	peer, err := NewA2APeer("writer", "", srv.URL, "")
	if err != nil {
		t.Fatalf("NewA2APeer: %v", err)
	}

	if _, err := peer.Invoke(t.Context(), "draft", orchestrator.InputSet{}, time.Now().Add(time.Minute)); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
