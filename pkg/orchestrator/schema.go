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

import "fmt"

// Validate checks body against the schema's required fields and
// declared types. body must decode to map[string]any (the shape
// produced by merkle.CanonicalEncode's input convention) for anything
// beyond a bare presence check to apply.
func (s *Schema) Validate(body any) error {
	if s == nil {
		return nil
	}
	m, ok := body.(map[string]any)
	if !ok {
		if len(s.Required) > 0 {
			return fmt.Errorf("schema: expected object body, got %T", body)
		}
		return nil
	}

	for _, field := range s.Required {
		v, present := m[field]
		if !present {
			return fmt.Errorf("schema: missing required field %q", field)
		}
		want, typed := s.Types[field]
		if !typed {
			continue
		}
		if !matchesType(v, want) {
			return fmt.Errorf("schema: field %q: expected %s, got %T", field, want, v)
		}
	}
	return nil
}

func matchesType(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		if !ok {
			_, ok = v.(int)
		}
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
