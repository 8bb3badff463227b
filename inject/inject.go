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

// Package inject applies calibrated noise to model parameter sets and
// charges the corresponding spend to the session's privacy budget.
package inject

import (
	"errors"
	"fmt"

	"github.com/google/federated-privacy/go/budget"
	"github.com/google/federated-privacy/go/checks"
	"github.com/google/federated-privacy/go/noise"
	"github.com/google/federated-privacy/go/params"
)

// ErrEmptyParameterSet is returned when there are no parameters to noise.
var ErrEmptyParameterSet = errors.New("empty parameter set")

// Injector adds elementwise noise from a configured mechanism to every
// tensor of a parameter set. Each invocation spends 1/scale of privacy
// budget: the smaller the noise, the more budget a release costs.
//
// Injector holds no mutable state and is safe for concurrent use; budget
// mutation is serialized inside the Tracker it is handed.
type Injector struct {
	noise       noise.Noise
	epsilon     float64
	delta       float64
	sensitivity float64
	adaptive    bool
}

// InjectorOptions contains the options necessary to initialize an Injector.
type InjectorOptions struct {
	Epsilon     float64     // Privacy parameter ε. Required.
	Delta       float64     // Privacy parameter δ. Required with Gaussian noise.
	Sensitivity float64     // Upper bound on a single update's influence. Defaults to 1.
	Noise       noise.Noise // Noise mechanism. Defaults to Gaussian noise.
	// Adaptive shrinks the scale by 1/√(round+1) over successive rounds,
	// spending budget proportionally faster. Defaults to false.
	Adaptive bool
}

// NewInjector returns a new Injector.
func NewInjector(opt *InjectorOptions) (*Injector, error) {
	if opt == nil {
		opt = &InjectorOptions{} // Prevents panicking due to a nil pointer dereference.
	}
	n := opt.Noise
	if n == nil {
		n = noise.Gaussian()
	}
	sensitivity := opt.Sensitivity
	if sensitivity == 0 {
		sensitivity = 1
	}
	// Check that the parameters are compatible with the chosen mechanism
	// by calibrating once up front.
	scale, err := n.Scale(opt.Epsilon, opt.Delta, sensitivity)
	if err != nil {
		return nil, fmt.Errorf("NewInjector: %w", err)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("NewInjector: calibrated scale is %f, must be strictly positive: %w", scale, checks.ErrInvalidParameter)
	}
	return &Injector{
		noise:       n,
		epsilon:     opt.Epsilon,
		delta:       opt.Delta,
		sensitivity: sensitivity,
		adaptive:    opt.Adaptive,
	}, nil
}

// Scale returns the noise scale the injector will use for the given round.
func (in *Injector) Scale(round int) (float64, error) {
	if in.adaptive {
		return noise.AdaptiveScale(in.noise, in.epsilon, in.delta, in.sensitivity, round)
	}
	if err := checks.CheckRound("Scale", round); err != nil {
		return 0, err
	}
	return in.noise.Scale(in.epsilon, in.delta, in.sensitivity)
}

// AddNoise returns a copy of p with i.i.d. noise added to every element
// and charges 1/scale to tracker. The output always has the same names
// and shapes as the input and, the zero-element case aside, is never
// identical to it.
//
// Consume is called exactly once per invocation, before any noise is
// drawn, so a refused spend (budget.ErrExceeded under the Strict policy)
// leaves no partially noised release behind.
func (in *Injector) AddNoise(p params.Parameters, tracker *budget.Tracker, round int) (params.Parameters, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("AddNoise: %w", ErrEmptyParameterSet)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("AddNoise: %w", err)
	}
	scale, err := in.Scale(round)
	if err != nil {
		return nil, fmt.Errorf("AddNoise: %w", err)
	}
	if err := tracker.Consume(1 / scale); err != nil {
		return nil, fmt.Errorf("AddNoise: %w", err)
	}
	noised := p.Clone()
	for _, t := range noised {
		for i := range t.Values {
			t.Values[i] += in.noise.Sample(scale)
		}
	}
	return noised, nil
}
