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

package checkpoint

import (
	"fmt"
	"time"
)

// Config configures the checkpoint verifier.
//
// Example YAML configuration:
//
//	checkpoint:
//	  default_ttl: 300
//	  gc_interval: 60
type Config struct {
	// DefaultTTL is the lifetime, in seconds, applied when Create is
	// called without an explicit TTL.
	// Default: 300
	DefaultTTL int `yaml:"default_ttl,omitempty"`

	// GCInterval is the interval, in seconds, at which a caller is
	// expected to invoke GCExpired. Purely advisory - the verifier does
	// not run its own ticker.
	// Default: 60
	GCInterval int `yaml:"gc_interval,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 300
	}
	if c.GCInterval == 0 {
		c.GCInterval = 60
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTTL < 0 {
		return fmt.Errorf("checkpoint: default_ttl must be non-negative")
	}
	if c.GCInterval < 0 {
		return fmt.Errorf("checkpoint: gc_interval must be non-negative")
	}
	return nil
}

// DefaultTTLDuration returns DefaultTTL as a time.Duration.
func (c *Config) DefaultTTLDuration() time.Duration {
	if c == nil || c.DefaultTTL <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.DefaultTTL) * time.Second
}
