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

// Package stattestutils provides basic statistical utility functions.
//
// This package is not optimized for performance or speed and is only intended
// to be used in tests.
package stattestutils

import (
	"math"

	"github.com/google/federated-privacy/go/params"
)

// SampleMean returns the mean of a slice, calculated as the average over the
// values in the slice.
func SampleMean(values []float64) float64 {
	var sum float64 = 0.0
	for _, v := range values {
		sum += v
	}
	return sum / math.Max(1, float64(len(values)))
}

// SampleVariance returns the variance of a slice, calculated as the sum of
// squares of the distance to the mean of each of the values, divided by the
// number of values.
func SampleVariance(values []float64) float64 {
	mean := SampleMean(values)
	var sumOfSquares float64 = 0.0
	for _, v := range values {
		sumOfSquares += math.Pow(v-mean, 2)
	}
	return sumOfSquares / math.Max(1, float64(len(values)))
}

// SampleStdDev returns the standard deviation of a slice.
func SampleStdDev(values []float64) float64 {
	return math.Sqrt(SampleVariance(values))
}

// Deviations returns the elementwise differences noised−clean across all
// tensors in name order. The two parameter sets must share a schema; the
// deviations of a noised release are the noise sample itself.
func Deviations(clean, noised params.Parameters) []float64 {
	out := make([]float64, 0, clean.NumValues())
	for _, name := range clean.Names() {
		cleanValues := clean[name].Values
		noisedValues := noised[name].Values
		for i := range cleanValues {
			out = append(out, noisedValues[i]-cleanValues[i])
		}
	}
	return out
}
