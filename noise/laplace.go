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
	"math"

	"github.com/google/federated-privacy/go/checks"
	"github.com/google/federated-privacy/go/rand"
)

type laplace struct{}

// Laplace returns a Noise instance that calibrates and draws Laplace
// noise, yielding pure ε-differential privacy with
//
//	b = sensitivity / ε
//
// for a release with the given L1 sensitivity. δ plays no role in the
// Laplace mechanism and is ignored.
func Laplace() Noise {
	return laplace{}
}

// Scale returns the scale parameter of the Laplace noise calibrated for
// the given privacy parameters.
func (laplace) Scale(epsilon, delta, sensitivity float64) (float64, error) {
	if err := checkArgsLaplace("Scale (laplace)", epsilon, sensitivity); err != nil {
		return 0, err
	}
	return sensitivity / epsilon, nil
}

// Sample draws one Laplace sample with location 0 and the given scale.
func (laplace) Sample(scale float64) float64 {
	return scale * rand.Laplace()
}

// ConfidenceInterval returns the interval containing the raw value from
// which noisedX was computed with probability 1 - alpha.
func (laplace) ConfidenceInterval(noisedX, scale, alpha float64) (ConfidenceInterval, error) {
	if err := checkAlpha("ConfidenceInterval (laplace)", alpha); err != nil {
		return ConfidenceInterval{}, err
	}
	z := inverseCDFLaplace(scale, alpha/2)
	return ConfidenceInterval{LowerBound: noisedX + z, UpperBound: noisedX - z}, nil
}

func (laplace) String() string {
	return "Laplace Noise"
}

// inverseCDFLaplace computes the quantile z satisfying Pr[Y ≤ z] = p for a
// random variable Y that is Laplace distributed with the given scale and
// location 0.
func inverseCDFLaplace(scale, p float64) float64 {
	if p < 0.5 {
		return scale * math.Log(2*p)
	}
	return -scale * math.Log(2*(1-p))
}

func checkArgsLaplace(label string, epsilon, sensitivity float64) error {
	if err := checks.CheckEpsilonStrict(label, epsilon); err != nil {
		return err
	}
	return checks.CheckSensitivity(label, sensitivity)
}
