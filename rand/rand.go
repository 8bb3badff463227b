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

// Package rand provides methods for generating random numbers from the
// distributions used by the noise mechanisms of the federated privacy core.
package rand

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math"
	mathrand "math/rand"
	"sync"

	log "github.com/golang/glog"
)

var (
	randBufLock sync.Mutex
	randBuf     io.Reader = bufio.NewReaderSize(cryptorand.Reader, 65536)
)

func readRandBuf(b []byte) (int, error) {
	randBufLock.Lock()
	defer randBufLock.Unlock()
	return io.ReadFull(randBuf, b)
}

// U64 returns a uniformly random uint64.
func U64() uint64 {
	var r [8]uint8
	if _, err := readRandBuf(r[:]); err != nil {
		log.Fatalf("out of randomness, should never happen: %v", err)
	}
	return binary.LittleEndian.Uint64(r[:])
}

// Boolean returns true or false with equal probability.
func Boolean() bool {
	return U64()&1 == 1
}

// Sign returns +1.0 or -1.0 with equal probabilities.
func Sign() float64 {
	if Boolean() {
		return 1.0
	}
	return -1.0
}

// Uniform returns a float64 from the interval (0, 1] such that each of the
// 2⁵³ equally spaced grid points is returned with equal probability. The
// interval is half-open on the left so that taking the log of the output
// is always defined.
func Uniform() float64 {
	i := U64() % (1 << 53)
	return (1 + float64(i)) / (1 << 53)
}

// Normal returns a normally distributed float64 with mean 0 and standard
// deviation 1.
func Normal() float64 {
	return mathrand.New(randSource{}).NormFloat64()
}

// Laplace returns a float64 drawn from a Laplace distribution with location
// 0 and scale 1, via inverse transform sampling of a uniform draw.
func Laplace() float64 {
	u := Uniform()
	if u < 0.5 {
		return math.Log(2 * u)
	}
	return -math.Log(2 * (1 - u))
}

// randSource is a cryptographically secure implementation of math/rand.Source.
type randSource struct{}

// Int63 returns a uniformly random int64 in [0, 1<<63).
func (rs randSource) Int63() int64 {
	return int64(U64() >> 1)
}

// Seed is a no-op.
func (rs randSource) Seed(_ int64) {}
