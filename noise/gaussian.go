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

package noise

import (
	"fmt"
	"math"

	"github.com/google/federated-privacy/go/checks"
	"github.com/google/federated-privacy/go/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

type gaussian struct{}

// Gaussian returns a Noise instance that calibrates and draws Gaussian
// noise. The calibration implements the classical analytic bound of the
// Gaussian mechanism,
//
//	σ = sensitivity · √(2·ln(1.25/δ)) / ε,
//
// which yields (ε,δ)-differential privacy for a release with the given
// L2 sensitivity. This testbed draws floating-point samples directly; it
// does not harden the mechanism against floating-point artifacts the way
// a production release pipeline would.
func Gaussian() Noise {
	return gaussian{}
}

// Scale returns the standard deviation of the Gaussian noise calibrated
// for the given privacy parameters.
func (gaussian) Scale(epsilon, delta, sensitivity float64) (float64, error) {
	if err := checkArgsGaussian("Scale (gaussian)", epsilon, delta, sensitivity); err != nil {
		return 0, err
	}
	return sensitivity * math.Sqrt(2*math.Log(1.25/delta)) / epsilon, nil
}

// Sample draws one Gaussian sample with mean 0 and standard deviation scale.
func (gaussian) Sample(scale float64) float64 {
	return scale * rand.Normal()
}

// ConfidenceInterval returns the interval containing the raw value from
// which noisedX was computed with probability 1 - alpha.
func (gaussian) ConfidenceInterval(noisedX, scale, alpha float64) (ConfidenceInterval, error) {
	if err := checkAlpha("ConfidenceInterval (gaussian)", alpha); err != nil {
		return ConfidenceInterval{}, err
	}
	noiseDist := distuv.Normal{Mu: 0, Sigma: scale}
	// The distribution is symmetric, so the (alpha/2)-quantile z gives the
	// interval [noisedX + z, noisedX - z]. alpha/2 is more accurately
	// representable as a float64 than 1 - alpha/2.
	z := noiseDist.Quantile(alpha / 2)
	return ConfidenceInterval{LowerBound: noisedX + z, UpperBound: noisedX - z}, nil
}

func (gaussian) String() string {
	return "Gaussian Noise"
}

func checkArgsGaussian(label string, epsilon, delta, sensitivity float64) error {
	if err := checks.CheckEpsilonStrict(label, epsilon); err != nil {
		return err
	}
	if err := checks.CheckDeltaStrict(label, delta); err != nil {
		return err
	}
	return checks.CheckSensitivity(label, sensitivity)
}

func checkAlpha(label string, alpha float64) error {
	if alpha <= 0 || alpha >= 1 || math.IsNaN(alpha) {
		return fmt.Errorf("%s: Alpha is %f, must be within (0, 1): %w", label, alpha, checks.ErrInvalidParameter)
	}
	return nil
}
