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

package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the current mode of a breaker.
type State string

const (
	CLOSED    State = "CLOSED"
	OPEN      State = "OPEN"
	HALF_OPEN State = "HALF_OPEN"
)

// ErrOpen is returned by CallThrough when the breaker is OPEN and
// rejects the call without invoking fn.
var ErrOpen = errors.New("breaker: BREAKER_OPEN")

// Breaker is a single per-agent circuit breaker. It gates calls; it
// never retries them.
type Breaker struct {
	cfg *Config

	mu                 sync.Mutex
	state              State
	consecutiveFails   int
	consecutiveSuccess int
	openUntil          time.Time
}

// New constructs a Breaker in the CLOSED state. A nil cfg is replaced
// with defaults.
func New(cfg *Config) *Breaker {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	return &Breaker{cfg: cfg, state: CLOSED}
}

// State returns the current state, transitioning OPEN to HALF_OPEN
// first if the open timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state
}

// maybeProbe moves an OPEN breaker to HALF_OPEN once openUntil has
// passed. Must be called with b.mu held.
func (b *Breaker) maybeProbe() {
	if b.state == OPEN && !b.openUntil.IsZero() && time.Now().After(b.openUntil) {
		b.state = HALF_OPEN
		b.consecutiveSuccess = 0
	}
}

// CallThrough invokes fn only if the breaker's current state admits a
// call, then records the outcome and updates state. Only fn may block;
// the state check and transition itself are non-blocking CPU work, per
// the concurrency model's "never hold the breaker lock across an agent
// call" requirement - the lock is released before fn runs and
// re-acquired only to record the outcome.
func (b *Breaker) CallThrough(ctx context.Context, fn func(context.Context) error) error {
	b.mu.Lock()
	b.maybeProbe()
	if b.state == OPEN {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
	return err
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure() {
	switch b.state {
	case HALF_OPEN:
		b.trip()
	case CLOSED:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.trip()
		}
	case OPEN:
		// Already open; a failure here is a stale probe result, ignore.
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess() {
	switch b.state {
	case CLOSED:
		b.consecutiveFails = 0
	case HALF_OPEN:
		b.consecutiveSuccess++
		if b.consecutiveSuccess >= b.cfg.SuccessThreshold {
			b.state = CLOSED
			b.consecutiveFails = 0
			b.consecutiveSuccess = 0
		}
	case OPEN:
		// Stale probe result, ignore.
	}
}

// trip must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = OPEN
	b.consecutiveFails = 0
	b.consecutiveSuccess = 0
	b.openUntil = time.Now().Add(b.cfg.OpenTimeoutDuration())
}
