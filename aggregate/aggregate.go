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

// Package aggregate combines per-client model updates into one global
// parameter set. Strategies range from plain averaging to Byzantine-
// resilient selection; all of them enforce a common schema across
// contributors and never silently average incompatible shapes.
package aggregate

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/golang/glog"
	"github.com/google/federated-privacy/go/checks"
	"github.com/google/federated-privacy/go/params"
	"gonum.org/v1/gonum/floats"
)

// ErrEmptyAggregation is returned when there are no updates to aggregate.
var ErrEmptyAggregation = errors.New("no updates to aggregate")

// SchemaMismatchError reports contributors whose parameter sets disagree
// on names or shapes. The offending clients are named rather than
// dropped, so schema divergence surfaces as a bug instead of being
// masked by filtering.
type SchemaMismatchError struct {
	ClientIDs []string
	Detail    string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("parameter schema mismatch between clients [%s]: %s", strings.Join(e.ClientIDs, ", "), e.Detail)
}

// Strategy is an enum type. Its values are the supported aggregation
// strategies.
type Strategy int

const (
	// Mean is the unweighted arithmetic mean per parameter element.
	Mean Strategy = iota
	// WeightedMean is the weight-normalized sum per parameter element.
	WeightedMean
	// Median is the elementwise median across contributors.
	Median
	// TrimmedMean discards the extremes of each element's distribution
	// before averaging.
	TrimmedMean
	// Robust excludes contributors whose z-score against the cohort
	// exceeds a detection threshold, then averages the rest.
	Robust
	// Krum keeps the contributors closest to the bulk of the cohort by
	// pairwise distance and averages only those.
	Krum
)

var strategyName = map[Strategy]string{
	Mean:         "mean",
	WeightedMean: "weighted-mean",
	Median:       "median",
	TrimmedMean:  "trimmed-mean",
	Robust:       "robust",
	Krum:         "krum",
}

// String returns the configuration name of the Strategy.
func (s Strategy) String() string {
	if name, ok := strategyName[s]; ok {
		return name
	}
	return "unrecognised"
}

// ParseStrategy converts a strategy name, as it appears in configuration
// files, into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for strategy, name := range strategyName {
		if name == s {
			return strategy, nil
		}
	}
	return Mean, fmt.Errorf("ParseStrategy: unknown strategy %q: %w", s, checks.ErrInvalidParameter)
}

// ClientUpdate is one client's contribution to a round.
type ClientUpdate struct {
	ClientID string
	Params   params.Parameters
	// Weight is the client's share in weighted aggregation, typically
	// proportional to its local dataset size. Ignored by all strategies
	// except WeightedMean.
	Weight float64
}

// Result is the outcome of one aggregation pass. Params becomes the next
// round's global parameter set.
type Result struct {
	Params   params.Parameters
	Strategy Strategy
	// Used counts the contributors that entered the final reduction after
	// filtering.
	Used int
	// Rejected lists the client ids a robust strategy excluded.
	Rejected []string
}

// Aggregator combines client updates under a fixed strategy.
type Aggregator struct {
	strategy           Strategy
	trimRatio          float64
	keepFraction       float64
	detectionThreshold float64
	weights            []float64
}

// AggregatorOptions contains the options necessary to initialize an
// Aggregator.
type AggregatorOptions struct {
	Strategy Strategy
	// TrimRatio is the fraction trimmed from each end by TrimmedMean.
	// Must be within [0, 0.5). Defaults to 0.1.
	TrimRatio float64
	// KeepFraction is the fraction of contributors Krum retains.
	// Must be within (0, 1]. Defaults to 0.7.
	KeepFraction float64
	// DetectionThreshold is the z-score above which Robust flags a
	// contributor. Defaults to 2.5.
	DetectionThreshold float64
	// Weights optionally overrides the per-update weights for
	// WeightedMean. When supplied, its length must match the number of
	// updates passed to Aggregate.
	Weights []float64
}

// NewAggregator returns a new Aggregator.
func NewAggregator(opt *AggregatorOptions) (*Aggregator, error) {
	if opt == nil {
		opt = &AggregatorOptions{} // Prevents panicking due to a nil pointer dereference.
	}
	if _, ok := strategyName[opt.Strategy]; !ok {
		return nil, fmt.Errorf("NewAggregator: unknown strategy (%d): %w", opt.Strategy, checks.ErrInvalidParameter)
	}
	trimRatio := opt.TrimRatio
	if trimRatio == 0 {
		trimRatio = 0.1
	}
	keepFraction := opt.KeepFraction
	if keepFraction == 0 {
		keepFraction = 0.7
	}
	detectionThreshold := opt.DetectionThreshold
	if detectionThreshold == 0 {
		detectionThreshold = 2.5
	}
	if err := checks.CheckTrimRatio("NewAggregator", trimRatio); err != nil {
		return nil, err
	}
	if err := checks.CheckKeepFraction("NewAggregator", keepFraction); err != nil {
		return nil, err
	}
	if err := checks.CheckDetectionThreshold("NewAggregator", detectionThreshold); err != nil {
		return nil, err
	}
	for _, w := range opt.Weights {
		if err := checks.CheckWeight("NewAggregator", w); err != nil {
			return nil, err
		}
	}
	return &Aggregator{
		strategy:           opt.Strategy,
		trimRatio:          trimRatio,
		keepFraction:       keepFraction,
		detectionThreshold: detectionThreshold,
		weights:            opt.Weights,
	}, nil
}

// Strategy returns the aggregator's strategy.
func (a *Aggregator) Strategy() Strategy {
	return a.strategy
}

// Aggregate combines the given updates into one parameter set.
//
// A single contributor is passed through unchanged regardless of
// strategy. An empty update list fails with ErrEmptyAggregation and
// schema divergence fails with a SchemaMismatchError naming both the
// reference client and the offender.
func (a *Aggregator) Aggregate(updates []ClientUpdate) (*Result, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("Aggregate: %w", ErrEmptyAggregation)
	}
	for i, u := range updates {
		if len(u.Params) == 0 {
			return nil, fmt.Errorf("Aggregate: client %q submitted an empty parameter set: %w", u.ClientID, ErrEmptyAggregation)
		}
		if err := u.Params.Validate(); err != nil {
			return nil, fmt.Errorf("Aggregate: client %q: %w", u.ClientID, err)
		}
		if err := checks.CheckWeight(fmt.Sprintf("Aggregate (client %q)", u.ClientID), u.Weight); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := updates[0].Params.CheckSchema(u.Params); err != nil {
				return nil, &SchemaMismatchError{
					ClientIDs: []string{updates[0].ClientID, u.ClientID},
					Detail:    err.Error(),
				}
			}
		}
	}
	if len(updates) == 1 {
		return &Result{Params: updates[0].Params.Clone(), Strategy: a.strategy, Used: 1}, nil
	}

	var (
		aggregated params.Parameters
		rejected   []string
		err        error
	)
	switch a.strategy {
	case Mean:
		aggregated = meanOf(updates)
	case WeightedMean:
		aggregated, err = a.weightedMean(updates)
	case Median:
		aggregated = elementwise(updates, median)
	case TrimmedMean:
		aggregated = elementwise(updates, trimmedMean(a.trimRatio))
	case Robust:
		aggregated, rejected = a.robustMean(updates)
	case Krum:
		aggregated, rejected = a.krum(updates)
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Params:   aggregated,
		Strategy: a.strategy,
		Used:     len(updates) - len(rejected),
		Rejected: rejected,
	}, nil
}

// meanOf returns the unweighted elementwise mean of the updates.
func meanOf(updates []ClientUpdate) params.Parameters {
	return meanOfSubset(updates, nil)
}

// meanOfSubset averages the updates whose indices appear in keep; a nil
// keep set averages all of them.
func meanOfSubset(updates []ClientUpdate, keep map[int]bool) params.Parameters {
	out := make(params.Parameters, len(updates[0].Params))
	count := 0.0
	for name, t := range updates[0].Params {
		out[name] = params.Tensor{Shape: append([]int(nil), t.Shape...), Values: make([]float64, len(t.Values))}
	}
	for i, u := range updates {
		if keep != nil && !keep[i] {
			continue
		}
		for name, t := range u.Params {
			floats.Add(out[name].Values, t.Values)
		}
		count++
	}
	for _, t := range out {
		floats.Scale(1/count, t.Values)
	}
	return out
}

// weightedMean returns the weight-normalized sum of the updates.
func (a *Aggregator) weightedMean(updates []ClientUpdate) (params.Parameters, error) {
	weights := a.weights
	if weights == nil {
		weights = make([]float64, len(updates))
		for i, u := range updates {
			weights[i] = u.Weight
		}
	}
	if len(weights) != len(updates) {
		return nil, fmt.Errorf("weightedMean: got %d weights for %d updates: %w", len(weights), len(updates), checks.ErrInvalidParameter)
	}
	total := floats.Sum(weights)
	if total == 0 {
		return nil, fmt.Errorf("weightedMean: total weight is zero: %w", checks.ErrInvalidParameter)
	}
	out := make(params.Parameters, len(updates[0].Params))
	for name, t := range updates[0].Params {
		out[name] = params.Tensor{Shape: append([]int(nil), t.Shape...), Values: make([]float64, len(t.Values))}
	}
	for i, u := range updates {
		for name, t := range u.Params {
			floats.AddScaled(out[name].Values, weights[i]/total, t.Values)
		}
	}
	return out, nil
}

// elementwise reduces each parameter element's cross-client column with
// the given reduction. The column buffer is reused across elements.
func elementwise(updates []ClientUpdate, reduce func(column []float64) float64) params.Parameters {
	out := make(params.Parameters, len(updates[0].Params))
	column := make([]float64, len(updates))
	for name, t := range updates[0].Params {
		values := make([]float64, len(t.Values))
		for i := range values {
			for j, u := range updates {
				column[j] = u.Params[name].Values[i]
			}
			values[i] = reduce(column)
		}
		out[name] = params.Tensor{Shape: append([]int(nil), t.Shape...), Values: values}
	}
	return out
}

func warnFallback(strategy Strategy, n int) {
	log.Warningf("%v: all %d contributors were flagged, falling back to aggregating all of them", strategy, n)
}
