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

package budget

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNewTracker(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		opt     *TrackerOptions
		wantErr bool
	}{
		{"valid options", &TrackerOptions{Epsilon: 1.0, Delta: 1e-5}, false},
		{"degrade policy", &TrackerOptions{Epsilon: 1.0, Delta: 1e-5, Policy: Degrade}, false},
		{"nil options", nil, true},
		{"zero epsilon", &TrackerOptions{Epsilon: 0, Delta: 1e-5}, true},
		{"negative epsilon", &TrackerOptions{Epsilon: -1, Delta: 1e-5}, true},
		{"infinite epsilon", &TrackerOptions{Epsilon: math.Inf(1), Delta: 1e-5}, true},
		{"zero delta", &TrackerOptions{Epsilon: 1.0, Delta: 0}, true},
		{"delta of 1", &TrackerOptions{Epsilon: 1.0, Delta: 1}, true},
		{"unknown policy", &TrackerOptions{Epsilon: 1.0, Delta: 1e-5, Policy: Policy(42)}, true},
	} {
		if _, err := NewTracker(tc.opt); (err != nil) != tc.wantErr {
			t.Errorf("NewTracker: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	for _, tc := range []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"strict", Strict, false},
		{"Strict", Strict, false},
		{"degrade", Degrade, false},
		{"lenient", Strict, true},
		{"", Strict, true},
	} {
		got, err := ParsePolicy(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParsePolicy(%q) for err got %v, want %t", tc.input, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

// Sequential spends must accumulate to their exact sum regardless of order.
func TestConsumeAccumulates(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 10.0, Delta: 1e-5})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	amounts := []float64{0.5, 0.125, 2.0, 0.25, 1.0}
	want := 0.0
	for _, a := range amounts {
		if err := tracker.Consume(a); err != nil {
			t.Fatalf("Consume(%f) returned error %v", a, err)
		}
		want += a
	}
	if got := tracker.Consumed(); got != want {
		t.Errorf("Consumed() = %f, want %f", got, want)
	}
	if got := tracker.Remaining(); got != 10.0-want {
		t.Errorf("Remaining() = %f, want %f", got, 10.0-want)
	}
}

func TestConsumeInvalidAmount(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 1.0, Delta: 1e-5})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	for _, tc := range []struct {
		desc   string
		amount float64
	}{
		{"negative amount", -0.1},
		{"NaN amount", math.NaN()},
		{"infinite amount", math.Inf(1)},
	} {
		if err := tracker.Consume(tc.amount); err == nil {
			t.Errorf("Consume: when %s expected an error, got none", tc.desc)
		}
	}
	if got := tracker.Consumed(); got != 0 {
		t.Errorf("Consumed() = %f after rejected spends, want 0", got)
	}
}

func TestStrictPolicyRefusesOverrun(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 1.0, Delta: 1e-5, Policy: Strict})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	if err := tracker.Consume(0.8); err != nil {
		t.Fatalf("Consume(0.8) returned error %v", err)
	}
	err = tracker.Consume(0.3)
	if !errors.Is(err, ErrExceeded) {
		t.Fatalf("Consume(0.3) = %v, want ErrExceeded", err)
	}
	// A refused spend records nothing.
	if got := tracker.Consumed(); got != 0.8 {
		t.Errorf("Consumed() = %f after refused spend, want 0.8", got)
	}
	if tracker.IsExhausted() {
		t.Errorf("IsExhausted() = true after refused spend, want false")
	}
}

func TestDegradePolicyRecordsOverrun(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 1.0, Delta: 1e-5, Policy: Degrade})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	if err := tracker.Consume(0.8); err != nil {
		t.Fatalf("Consume(0.8) returned error %v", err)
	}
	if err := tracker.Consume(0.5); err != nil {
		t.Fatalf("Consume(0.5) under Degrade returned error %v", err)
	}
	if got := tracker.Consumed(); math.Abs(got-1.3) > 1e-12 {
		t.Errorf("Consumed() = %f, want 1.3", got)
	}
	if got := tracker.Remaining(); got >= 0 {
		t.Errorf("Remaining() = %f after overrun, want negative", got)
	}
	if !tracker.IsExhausted() {
		t.Errorf("IsExhausted() = false after overrun, want true")
	}
}

func TestExhaustionIsIrreversible(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 1.0, Delta: 1e-5})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	if err := tracker.Consume(1.0); err != nil {
		t.Fatalf("Consume(1.0) returned error %v", err)
	}
	if !tracker.IsExhausted() {
		t.Fatalf("IsExhausted() = false with zero remaining, want true")
	}
	// Zero-cost spends are legal but cannot resurrect the tracker.
	if err := tracker.Consume(0); err != nil {
		t.Fatalf("Consume(0) returned error %v", err)
	}
	if !tracker.IsExhausted() {
		t.Errorf("IsExhausted() = false after exhaustion, want true")
	}
}

func TestReport(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 2.0, Delta: 1e-5})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	if err := tracker.Consume(0.5); err != nil {
		t.Fatalf("Consume(0.5) returned error %v", err)
	}
	got := tracker.Report(4.8)
	want := Report{
		Epsilon:    2.0,
		Delta:      1e-5,
		Consumed:   0.5,
		Remaining:  1.5,
		NoiseScale: 4.8,
		State:      "Active",
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Report() returned diff (-want +got):\n%s", diff)
	}
}

// Two gaussian-calibrated rounds at ε=1, δ=1e-5, s=1 spend 1/σ each and
// leave ε - 2/σ ≈ 0.587 of budget.
func TestTwoRoundSpendScenario(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 1.0, Delta: 1e-5})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	scale := math.Sqrt(2 * math.Log(1.25/1e-5)) // ≈ 4.84
	for i := 0; i < 2; i++ {
		if err := tracker.Consume(1 / scale); err != nil {
			t.Fatalf("Consume(1/scale) returned error %v", err)
		}
	}
	want := 1.0 - 2/scale
	if got := tracker.Remaining(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Remaining() = %f, want %f", got, want)
	}
	if math.Abs(want-0.587) > 0.01 {
		t.Errorf("expected remaining budget near 0.587, computed %f", want)
	}
}

// Concurrent spends must serialize; the total must equal the sum of all
// individual amounts with no lost updates.
func TestConcurrentConsume(t *testing.T) {
	tracker, err := NewTracker(&TrackerOptions{Epsilon: 1000.0, Delta: 1e-5})
	if err != nil {
		t.Fatalf("NewTracker returned error %v", err)
	}
	const workers = 16
	const spendsPerWorker = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < spendsPerWorker; j++ {
				if err := tracker.Consume(0.25); err != nil {
					t.Errorf("Consume returned error %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	want := 0.25 * workers * spendsPerWorker
	if got := tracker.Consumed(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Consumed() = %f after concurrent spends, want %f", got, want)
	}
}
