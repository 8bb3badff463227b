//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package budget contains the privacy budget ledger for a federated
// training session. Every noised release spends part of a finite ε budget;
// the Tracker records the cumulative spend and refuses, or explicitly
// degrades, once the budget runs out.
package budget

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	log "github.com/golang/glog"
	"github.com/google/federated-privacy/go/checks"
)

var (
	// ErrExceeded is returned by Consume under the Strict policy when the
	// requested spend would push the cumulative consumption past ε. The
	// tracker state is unchanged; the caller decides whether to abort the
	// round or retry under a Degrade-policy tracker.
	ErrExceeded = errors.New("privacy budget exceeded")

	// ErrExhausted marks a tracker whose remaining budget is gone. This is
	// terminal for the session's private releases: continuing to train
	// without privacy is a policy decision this core refuses to make.
	ErrExhausted = errors.New("privacy budget exhausted")
)

// Policy selects how Consume behaves when a spend would exceed ε.
type Policy int

const (
	// Strict refuses over-budget spends with ErrExceeded.
	Strict Policy = iota
	// Degrade records over-budget spends anyway, logging each one. The
	// privacy guarantee no longer holds; the overrun is visible in every
	// subsequent Report.
	Degrade
)

var policyName = map[Policy]string{
	Strict:  "Strict",
	Degrade: "Degrade",
}

func (p Policy) String() string {
	return policyName[p]
}

// ParsePolicy returns the Policy with the given configuration name,
// case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	for policy, name := range policyName {
		if strings.EqualFold(name, s) {
			return policy, nil
		}
	}
	return Strict, fmt.Errorf("ParsePolicy: unknown policy %q: %w", s, checks.ErrInvalidParameter)
}

// Report is the per-session accounting snapshot emitted to the
// observability collaborator once per round.
type Report struct {
	Epsilon    float64
	Delta      float64
	Consumed   float64
	Remaining  float64
	NoiseScale float64
	State      string
}

// Tracker is the stateful ledger of privacy spend for one training
// session. Consumption only grows; once the remaining budget reaches zero
// the tracker is Exhausted and stays so.
//
// All methods are safe for concurrent use. Consume serializes its
// read-then-write through one mutex, which is the single documented
// concurrency hazard of the core.
type Tracker struct {
	mu       sync.Mutex
	epsilon  float64
	delta    float64
	policy   Policy
	consumed float64
	state    budgetState
}

// TrackerOptions contains the options necessary to initialize a Tracker.
type TrackerOptions struct {
	Epsilon float64 // Total privacy budget ε. Required.
	Delta   float64 // Failure probability bound δ. Required.
	Policy  Policy  // Over-budget behavior. Defaults to Strict.
}

// NewTracker returns a new Tracker with zero consumption.
func NewTracker(opt *TrackerOptions) (*Tracker, error) {
	if opt == nil {
		opt = &TrackerOptions{} // Prevents panicking due to a nil pointer dereference.
	}
	if err := checks.CheckEpsilonStrict("NewTracker", opt.Epsilon); err != nil {
		return nil, err
	}
	if err := checks.CheckDeltaStrict("NewTracker", opt.Delta); err != nil {
		return nil, err
	}
	if _, ok := policyName[opt.Policy]; !ok {
		return nil, fmt.Errorf("NewTracker: unknown policy (%d): %w", opt.Policy, checks.ErrInvalidParameter)
	}
	return &Tracker{
		epsilon: opt.Epsilon,
		delta:   opt.Delta,
		policy:  opt.Policy,
		state:   Active,
	}, nil
}

// Consume records a privacy spend of the given amount.
//
// Under the Strict policy a spend that would push consumption past ε is
// refused with ErrExceeded and nothing is recorded. Under the Degrade
// policy the spend is recorded regardless and every overrun is logged.
// A recorded spend is sunk: it cannot be rolled back even if the round it
// belongs to later fails.
func (t *Tracker) Consume(amount float64) error {
	if amount < 0 || math.IsInf(amount, 0) || math.IsNaN(amount) {
		return fmt.Errorf("Consume: amount is %f, must be nonnegative and finite: %w", amount, checks.ErrInvalidParameter)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed+amount > t.epsilon {
		if t.policy == Strict {
			return fmt.Errorf("Consume: spending %f on top of %f would pass epsilon %f: %w", amount, t.consumed, t.epsilon, ErrExceeded)
		}
		log.Warningf("Consume: budget overrun under Degrade policy, consumed %f of epsilon %f; releases are no longer (ε,δ)-private", t.consumed+amount, t.epsilon)
	}
	t.consumed += amount
	if t.epsilon-t.consumed <= 0 {
		t.state = Exhausted
	}
	return nil
}

// Remaining returns ε minus the cumulative consumption. The result is
// negative after a Degrade-policy overrun.
func (t *Tracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epsilon - t.consumed
}

// Consumed returns the cumulative consumption.
func (t *Tracker) Consumed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed
}

// IsExhausted reports whether the remaining budget is gone.
func (t *Tracker) IsExhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Exhausted
}

// Epsilon returns the session's total budget.
func (t *Tracker) Epsilon() float64 {
	return t.epsilon
}

// Delta returns the session's failure probability bound.
func (t *Tracker) Delta() float64 {
	return t.delta
}

// Report returns the accounting snapshot, stamped with the noise scale
// currently in use so the observability collaborator can persist both
// together.
func (t *Tracker) Report(noiseScale float64) Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Report{
		Epsilon:    t.epsilon,
		Delta:      t.delta,
		Consumed:   t.consumed,
		Remaining:  t.epsilon - t.consumed,
		NoiseScale: noiseScale,
		State:      t.state.String(),
	}
}
