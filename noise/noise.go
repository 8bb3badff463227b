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

// Package noise contains the mechanisms that calibrate and generate the
// noise added to federated model updates.
package noise

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/google/federated-privacy/go/checks"
)

// Kind is an enum type. Its values are the supported noise distribution
// types for differentially private releases of model parameters.
type Kind int

// Noise distributions used to achieve differential privacy.
const (
	GaussianNoise Kind = iota
	LaplaceNoise
	Unrecognised
)

// ToNoise converts a Kind into a Noise instance.
func ToNoise(k Kind) Noise {
	switch k {
	case GaussianNoise:
		return Gaussian()
	case LaplaceNoise:
		return Laplace()
	case Unrecognised:
		log.Warningf("ToNoise: Unrecognised noise specified, returning nil")
	default:
		log.Warningf("ToNoise: unknown kind (%v) specified, returning nil", k)
	}
	return nil
}

// ToKind converts a Noise instance into a Kind.
func ToKind(n Noise) Kind {
	switch n {
	case Gaussian():
		return GaussianNoise
	case Laplace():
		return LaplaceNoise
	case nil:
		log.Warningf("ToKind: nil noise specified, returning Unrecognised")
	default:
		log.Warningf("ToKind: unknown Noise (%v) specified, returning Unrecognised", n)
	}
	return Unrecognised
}

// ParseKind converts a mechanism name, as it appears in configuration
// files, into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "gaussian":
		return GaussianNoise, nil
	case "laplace":
		return LaplaceNoise, nil
	}
	return Unrecognised, fmt.Errorf("ParseKind: unknown noise kind %q: %w", s, checks.ErrInvalidParameter)
}

// String returns the configuration name of the Kind.
func (k Kind) String() string {
	switch k {
	case GaussianNoise:
		return "gaussian"
	case LaplaceNoise:
		return "laplace"
	}
	return "unrecognised"
}

// ConfidenceInterval holds lower and upper bounds as float64 for a
// confidence interval around a noised release.
type ConfidenceInterval struct {
	LowerBound, UpperBound float64
}

// Noise is an interface for mechanisms that calibrate and draw noise used
// to make released model parameters differentially private.
//
// Calibration is pure and deterministic; sampling is the only source of
// randomness. Implementations hold no state, so a single instance may be
// shared freely across goroutines.
type Noise interface {
	// Scale returns the noise scale calibrated for the given privacy
	// parameters: the standard deviation for Gaussian noise and the
	// scale parameter for Laplace noise.
	Scale(epsilon, delta, sensitivity float64) (float64, error)

	// Sample draws one value of noise with the given scale, location 0.
	Sample(scale float64) float64

	// ConfidenceInterval returns an interval containing the raw value
	// from which noisedX was computed with probability 1 - alpha.
	ConfidenceInterval(noisedX, scale, alpha float64) (ConfidenceInterval, error)

	// String names the mechanism.
	String() string
}

// AdaptiveScale returns the scale of n shrunk by 1/√(round+1), so that
// noise decays over successive training rounds.
//
// Because the budget cost of a release is proportional to 1/scale, the
// cumulative spend of R adaptive rounds grows like √R times faster than R
// fixed-scale rounds. Callers opting in trade privacy headroom for model
// accuracy in later rounds; this function never replaces Scale silently.
func AdaptiveScale(n Noise, epsilon, delta, sensitivity float64, round int) (float64, error) {
	if err := checks.CheckRound("AdaptiveScale", round); err != nil {
		return 0, err
	}
	scale, err := n.Scale(epsilon, delta, sensitivity)
	if err != nil {
		return 0, err
	}
	return scale * math.Sqrt(1/float64(round+1)), nil
}
