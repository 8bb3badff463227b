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

// Package checks contains validation of the privacy and aggregation
// parameters used by the federated privacy core.
package checks

import (
	"errors"
	"fmt"
	"math"

	log "github.com/golang/glog"
)

// ErrInvalidParameter is wrapped by every error returned from this package,
// so that callers can classify configuration mistakes with errors.Is.
var ErrInvalidParameter = errors.New("invalid parameter")

// CheckEpsilonStrict returns an error if ε is nonpositive or +∞.
func CheckEpsilonStrict(label string, epsilon float64) error {
	if epsilon <= 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("%s: Epsilon is %f, must be strictly positive and finite: %w", label, epsilon, ErrInvalidParameter)
	}
	return nil
}

// CheckDeltaStrict returns an error if δ is nonpositive or greater than or equal to 1.
func CheckDeltaStrict(label string, delta float64) error {
	if math.IsNaN(delta) {
		return fmt.Errorf("%s: Delta is %e, cannot be NaN: %w", label, delta, ErrInvalidParameter)
	}
	if delta <= 0 {
		return fmt.Errorf("%s: Delta is %e, must be strictly positive: %w", label, delta, ErrInvalidParameter)
	}
	if delta >= 1 {
		return fmt.Errorf("%s: Delta is %e, must be strictly less than 1: %w", label, delta, ErrInvalidParameter)
	}
	return nil
}

// CheckSensitivity returns an error if the sensitivity is negative or +∞.
// A zero sensitivity is accepted but degenerate: the calibrated scale
// collapses to 0 and released values carry no noise.
func CheckSensitivity(label string, sensitivity float64) error {
	if sensitivity < 0 || math.IsInf(sensitivity, 0) || math.IsNaN(sensitivity) {
		return fmt.Errorf("%s: Sensitivity is %f, must be nonnegative and finite: %w", label, sensitivity, ErrInvalidParameter)
	}
	if sensitivity == 0 {
		log.Warningf("%s: Sensitivity is 0, noise scale will be 0 and releases will not be privatized", label)
	}
	return nil
}

// CheckTrimRatio returns an error if the trim ratio lies outside [0, 0.5).
// Trimming half or more from each end leaves nothing to average.
func CheckTrimRatio(label string, trimRatio float64) error {
	if math.IsNaN(trimRatio) || trimRatio < 0 || trimRatio >= 0.5 {
		return fmt.Errorf("%s: TrimRatio is %f, must be within [0, 0.5): %w", label, trimRatio, ErrInvalidParameter)
	}
	return nil
}

// CheckKeepFraction returns an error if the keep fraction lies outside (0, 1].
func CheckKeepFraction(label string, keepFraction float64) error {
	if math.IsNaN(keepFraction) || keepFraction <= 0 || keepFraction > 1 {
		return fmt.Errorf("%s: KeepFraction is %f, must be within (0, 1]: %w", label, keepFraction, ErrInvalidParameter)
	}
	return nil
}

// CheckDetectionThreshold returns an error if the z-score threshold is
// nonpositive or not finite.
func CheckDetectionThreshold(label string, threshold float64) error {
	if threshold <= 0 || math.IsInf(threshold, 0) || math.IsNaN(threshold) {
		return fmt.Errorf("%s: DetectionThreshold is %f, must be strictly positive and finite: %w", label, threshold, ErrInvalidParameter)
	}
	return nil
}

// CheckWeight returns an error if a client weight is negative or not finite.
func CheckWeight(label string, weight float64) error {
	if weight < 0 || math.IsInf(weight, 0) || math.IsNaN(weight) {
		return fmt.Errorf("%s: Weight is %f, must be nonnegative and finite: %w", label, weight, ErrInvalidParameter)
	}
	return nil
}

// CheckRound returns an error if a round index is negative.
func CheckRound(label string, round int) error {
	if round < 0 {
		return fmt.Errorf("%s: Round is %d, must be nonnegative: %w", label, round, ErrInvalidParameter)
	}
	return nil
}
