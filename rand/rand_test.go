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

package rand

import (
	"math"
	"testing"
)

const numSamples = 100000

func sampleMean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleVariance(values []float64) float64 {
	mean := sampleMean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}

func TestUniformBounds(t *testing.T) {
	for i := 0; i < numSamples; i++ {
		u := Uniform()
		if u <= 0 || u > 1 {
			t.Fatalf("Uniform() = %f, want within (0, 1]", u)
		}
	}
}

func TestUniformMoments(t *testing.T) {
	samples := make([]float64, numSamples)
	for i := range samples {
		samples[i] = Uniform()
	}
	// Mean 0.5, variance 1/12. Tolerances are ~6 standard errors.
	if mean := sampleMean(samples); math.Abs(mean-0.5) > 0.006 {
		t.Errorf("Uniform sample mean is %f, want approximately 0.5", mean)
	}
	if variance := sampleVariance(samples); math.Abs(variance-1.0/12.0) > 0.002 {
		t.Errorf("Uniform sample variance is %f, want approximately %f", variance, 1.0/12.0)
	}
}

func TestNormalMoments(t *testing.T) {
	samples := make([]float64, numSamples)
	for i := range samples {
		samples[i] = Normal()
	}
	if mean := sampleMean(samples); math.Abs(mean) > 0.02 {
		t.Errorf("Normal sample mean is %f, want approximately 0", mean)
	}
	if variance := sampleVariance(samples); math.Abs(variance-1) > 0.05 {
		t.Errorf("Normal sample variance is %f, want approximately 1", variance)
	}
}

func TestLaplaceMoments(t *testing.T) {
	samples := make([]float64, numSamples)
	for i := range samples {
		samples[i] = Laplace()
	}
	// Unit-scale Laplace has mean 0 and variance 2.
	if mean := sampleMean(samples); math.Abs(mean) > 0.03 {
		t.Errorf("Laplace sample mean is %f, want approximately 0", mean)
	}
	if variance := sampleVariance(samples); math.Abs(variance-2) > 0.15 {
		t.Errorf("Laplace sample variance is %f, want approximately 2", variance)
	}
}

func TestSign(t *testing.T) {
	positive := 0
	for i := 0; i < numSamples; i++ {
		switch s := Sign(); s {
		case 1.0:
			positive++
		case -1.0:
		default:
			t.Fatalf("Sign() = %f, want ±1.0", s)
		}
	}
	// Expect a roughly even split; 6 standard deviations of slack.
	if delta := math.Abs(float64(positive) - numSamples/2); delta > 6*math.Sqrt(numSamples/4) {
		t.Errorf("Sign() returned +1.0 %d times out of %d, want approximately half", positive, numSamples)
	}
}
