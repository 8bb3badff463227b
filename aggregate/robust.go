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

// Robust aggregation strategies: elementwise rank statistics that
// tolerate outliers per element, and whole-contributor selection rules
// that tolerate Byzantine clients.

package aggregate

import (
	"math"
	"sort"

	"github.com/google/federated-privacy/go/params"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// stdGuard keeps z-scores finite when a parameter element has zero
// variance across the cohort.
const stdGuard = 1e-8

// median reduces one element's cross-client column to its median. The
// column is sorted in place; an even column takes the midpoint of the two
// central values.
func median(column []float64) float64 {
	sort.Float64s(column)
	n := len(column)
	if n%2 == 1 {
		return column[n/2]
	}
	return (column[n/2-1] + column[n/2]) / 2
}

// trimmedMean returns a reduction that sorts one element's cross-client
// column, discards ⌊n·ratio⌋ values from each end and averages the rest.
// ratio < 0.5 guarantees at least one value survives.
func trimmedMean(ratio float64) func(column []float64) float64 {
	return func(column []float64) float64 {
		sort.Float64s(column)
		k := int(float64(len(column)) * ratio)
		trimmed := column[k : len(column)-k]
		return floats.Sum(trimmed) / float64(len(trimmed))
	}
}

// robustMean flags contributors whose deviation from the cohort mean
// exceeds the detection threshold on any parameter element, then averages
// the unflagged rest. If every contributor is flagged the cohort is used
// as-is, so the aggregate is never empty.
func (a *Aggregator) robustMean(updates []ClientUpdate) (params.Parameters, []string) {
	n := len(updates)
	column := make([]float64, n)
	flagged := make([]bool, n)
	for name := range updates[0].Params {
		for i := range updates[0].Params[name].Values {
			for j, u := range updates {
				column[j] = u.Params[name].Values[i]
			}
			mean, std := stat.MeanStdDev(column, nil)
			for j := range updates {
				if math.Abs(column[j]-mean)/(std+stdGuard) > a.detectionThreshold {
					flagged[j] = true
				}
			}
		}
	}
	keep := make(map[int]bool, n)
	var rejected []string
	for i, u := range updates {
		if flagged[i] {
			rejected = append(rejected, u.ClientID)
		} else {
			keep[i] = true
		}
	}
	if len(keep) == 0 {
		warnFallback(Robust, n)
		return meanOf(updates), nil
	}
	return meanOfSubset(updates, keep), rejected
}

// krum scores each contributor by the sum of Euclidean distances between
// its flattened parameter vector and every other contributor's, then
// keeps the ⌈n·keepFraction⌉ lowest-scored contributors and averages
// them. Ties in score are broken toward the lower index.
func (a *Aggregator) krum(updates []ClientUpdate) (params.Parameters, []string) {
	n := len(updates)
	flat := make([][]float64, n)
	for i, u := range updates {
		flat[i] = u.Params.Flatten()
	}
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(flat[i], flat[j], 2)
			scores[i] += d
			scores[j] += d
		}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		if scores[order[x]] != scores[order[y]] {
			return scores[order[x]] < scores[order[y]]
		}
		return order[x] < order[y]
	})
	k := int(math.Ceil(float64(n) * a.keepFraction))
	if k < 1 {
		k = 1
	}
	keep := make(map[int]bool, k)
	for _, i := range order[:k] {
		keep[i] = true
	}
	var rejected []string
	for i, u := range updates {
		if !keep[i] {
			rejected = append(rejected, u.ClientID)
		}
	}
	return meanOfSubset(updates, keep), rejected
}
