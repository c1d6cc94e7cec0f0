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

// Package breaker implements a per-agent circuit breaker: a three-state
// admission-control gate (CLOSED, OPEN, HALF_OPEN) that stops repeated
// calls to a consistently-failing agent without itself retrying
// anything - retrying is the pipeline's job.
package breaker

import (
	"fmt"
	"time"
)

// Config configures a single breaker's thresholds.
//
// Example YAML configuration:
//
//	breaker:
//	  failure_threshold: 5
//	  open_timeout: 60
//	  success_threshold: 2
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from CLOSED to OPEN.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold,omitempty"`

	// OpenTimeout is the duration, in seconds, an OPEN breaker waits
	// before becoming eligible for a HALF_OPEN probe.
	// Default: 60
	OpenTimeout int `yaml:"open_timeout,omitempty"`

	// SuccessThreshold is the number of consecutive HALF_OPEN successes
	// required to transition back to CLOSED.
	// Default: 2
	SuccessThreshold int `yaml:"success_threshold,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 60
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("breaker: failure_threshold must be positive")
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("breaker: open_timeout must be positive")
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker: success_threshold must be positive")
	}
	return nil
}

// OpenTimeoutDuration returns OpenTimeout as a time.Duration.
func (c *Config) OpenTimeoutDuration() time.Duration {
	if c == nil || c.OpenTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.OpenTimeout) * time.Second
}
