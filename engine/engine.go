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

// Package engine orchestrates one federated round of privacy-preserving
// aggregation: open the concealed client updates, combine them, noise
// the aggregate and account for the spend.
//
// Noise is applied to the aggregate, once per round. Per-client noising
// (a stronger local guarantee at a much larger total noise cost) is
// available by using an inject.Injector directly on each update before
// submission; the engine itself never noises twice.
package engine

import (
	"fmt"

	log "github.com/golang/glog"
	"github.com/google/federated-privacy/go/aggregate"
	"github.com/google/federated-privacy/go/budget"
	"github.com/google/federated-privacy/go/inject"
	"github.com/google/federated-privacy/go/noise"
	"github.com/google/federated-privacy/go/secure"
)

// Report is the per-round privacy record handed to the observability
// collaborator. Persisting it is the collaborator's concern.
type Report struct {
	budget.Report
	Round                int
	ParticipantsUsed     int
	ParticipantsRejected int
	RejectedClients      []string
	NoiseDisabled        bool
}

// RoundResult carries one round's aggregation outcome and its privacy
// report.
type RoundResult struct {
	Aggregation *aggregate.Result
	Report      Report
}

// Engine runs the privacy pipeline for successive rounds of one training
// session. It is the sole owner and sole mutator of the session's budget
// tracker; callers observe the budget only through Report.
//
// Not thread-safe: rounds are sequential by design.
type Engine struct {
	tracker    *budget.Tracker
	injector   *inject.Injector
	aggregator *aggregate.Aggregator
	channel    secure.Channel
	noNoise    bool
	round      int
}

// Options contains the options necessary to initialize an Engine.
type Options struct {
	Epsilon     float64    // Privacy budget ε for the session. Required.
	Delta       float64    // Failure probability bound δ. Required.
	Sensitivity float64    // Declared bound on a single update's influence. Defaults to 1.
	NoiseKind   noise.Kind // Noise mechanism. Defaults to Gaussian noise.
	// Adaptive shrinks noise by 1/√(round+1) at a proportionally larger
	// budget spend. Defaults to false.
	Adaptive bool
	// DisableNoise turns off noise injection and budget accounting
	// entirely, for calibration and evaluation runs only. Releases are
	// then not private and every report says so.
	DisableNoise bool
	Policy       budget.Policy                // Over-budget behavior. Defaults to Strict.
	Aggregation  *aggregate.AggregatorOptions // Strategy and knobs. Defaults to Mean.
	Channel      secure.Channel               // Update concealment. Defaults to Passthrough.
}

// New returns a new Engine with an untouched budget.
func New(opt *Options) (*Engine, error) {
	if opt == nil {
		opt = &Options{} // Prevents panicking due to a nil pointer dereference.
	}
	tracker, err := budget.NewTracker(&budget.TrackerOptions{
		Epsilon: opt.Epsilon,
		Delta:   opt.Delta,
		Policy:  opt.Policy,
	})
	if err != nil {
		return nil, fmt.Errorf("engine.New: %w", err)
	}
	injector, err := inject.NewInjector(&inject.InjectorOptions{
		Epsilon:     opt.Epsilon,
		Delta:       opt.Delta,
		Sensitivity: opt.Sensitivity,
		Noise:       noise.ToNoise(opt.NoiseKind),
		Adaptive:    opt.Adaptive,
	})
	if err != nil {
		return nil, fmt.Errorf("engine.New: %w", err)
	}
	aggregator, err := aggregate.NewAggregator(opt.Aggregation)
	if err != nil {
		return nil, fmt.Errorf("engine.New: %w", err)
	}
	channel := opt.Channel
	if channel == nil {
		channel = secure.Passthrough()
	}
	log.Infof("engine: session initialized with epsilon=%f delta=%e strategy=%v channel=%v noise=%v",
		opt.Epsilon, opt.Delta, aggregator.Strategy(), channel, opt.NoiseKind)
	return &Engine{
		tracker:    tracker,
		injector:   injector,
		aggregator: aggregator,
		channel:    channel,
		noNoise:    opt.DisableNoise,
	}, nil
}

// Round returns the index the next round will run under.
func (e *Engine) Round() int {
	return e.round
}

// Exhausted reports whether the session's budget is gone.
func (e *Engine) Exhausted() bool {
	return e.tracker.IsExhausted()
}

// Report returns the current privacy report without running a round.
func (e *Engine) Report() Report {
	return e.report(0, nil)
}

// ProcessRound runs one full round over the given concealed updates:
// open each update, aggregate, noise the aggregate, record the spend and
// emit the round's report.
//
// An exhausted budget fails the round with budget.ErrExhausted before
// any update is touched; partial aggregation under an exhausted budget
// never happens. A refused spend (budget.ErrExceeded under the Strict
// policy) likewise publishes nothing. Failed rounds are never retried
// here: re-drawing noise for the same updates would spend budget twice
// for one release.
func (e *Engine) ProcessRound(updates []aggregate.ClientUpdate) (*RoundResult, error) {
	if !e.noNoise && e.tracker.IsExhausted() {
		return nil, fmt.Errorf("ProcessRound: round %d refused: %w", e.round, budget.ErrExhausted)
	}
	opened := make([]aggregate.ClientUpdate, 0, len(updates))
	for _, u := range updates {
		p, err := e.channel.Open(u.ClientID, e.round, u.Params)
		if err != nil {
			return nil, fmt.Errorf("ProcessRound: opening update from client %q: %w", u.ClientID, err)
		}
		opened = append(opened, aggregate.ClientUpdate{ClientID: u.ClientID, Params: p, Weight: u.Weight})
	}
	result, err := e.aggregator.Aggregate(opened)
	if err != nil {
		return nil, fmt.Errorf("ProcessRound: %w", err)
	}
	if !e.noNoise {
		noised, err := e.injector.AddNoise(result.Params, e.tracker, e.round)
		if err != nil {
			return nil, fmt.Errorf("ProcessRound: %w", err)
		}
		result.Params = noised
	}
	report := e.report(result.Used, result.Rejected)
	log.Infof("engine: round %d aggregated %d updates (%d used, %d rejected), consumed=%f remaining=%f",
		e.round, len(updates), result.Used, len(result.Rejected), report.Consumed, report.Remaining)
	e.round++
	return &RoundResult{Aggregation: result, Report: report}, nil
}

func (e *Engine) report(used int, rejected []string) Report {
	scale, err := e.injector.Scale(e.round)
	if err != nil {
		// The injector validated these parameters at construction.
		log.Errorf("engine: computing report scale: %v", err)
	}
	return Report{
		Report:               e.tracker.Report(scale),
		Round:                e.round,
		ParticipantsUsed:     used,
		ParticipantsRejected: len(rejected),
		RejectedClients:      rejected,
		NoiseDisabled:        e.noNoise,
	}
}
