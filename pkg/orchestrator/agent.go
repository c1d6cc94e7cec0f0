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
	"time"
)

// AgentFunc adapts a plain function to the Agent interface, the same
// functional-agent idiom the teacher used for its simplest in-process
// agents.
type AgentFunc func(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error)

func (f AgentFunc) Invoke(ctx context.Context, taskID string, in InputSet, deadline time.Time) (Payload, error) {
	return f(ctx, taskID, in, deadline)
}
