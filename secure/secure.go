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

// Package secure contains the simulated secure-aggregation channel.
//
// Nothing in this package is cryptographically secure. The masking
// channel hides individual updates from a log or a passive observer of
// the aggregation input, but the coordinator holds the mask key and can
// always unmask. Every Channel advertises this through Simulated; code
// that needs a real guarantee must refuse any channel that reports true.
package secure

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"

	"github.com/google/federated-privacy/go/params"
)

// Channel conceals a client's parameters on their way to the aggregator
// and reveals them again before aggregation.
type Channel interface {
	// Seal returns a concealed copy of p for the given client and round.
	Seal(clientID string, round int, p params.Parameters) (params.Parameters, error)

	// Open reverses Seal. The result matches the original up to
	// floating-point rounding of the mask arithmetic.
	Open(clientID string, round int, p params.Parameters) (params.Parameters, error)

	// Simulated reports whether the channel provides only simulated
	// protection. All channels in this package return true.
	Simulated() bool

	// String names the channel.
	String() string
}

type passthrough struct{}

// Passthrough returns a Channel that applies no protection at all, for
// sessions running with concealment disabled.
func Passthrough() Channel {
	return passthrough{}
}

func (passthrough) Seal(_ string, _ int, p params.Parameters) (params.Parameters, error) {
	if err := checkSealable(p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (passthrough) Open(_ string, _ int, p params.Parameters) (params.Parameters, error) {
	if err := checkSealable(p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (passthrough) Simulated() bool { return true }
func (passthrough) String() string  { return "Passthrough Channel" }

type masking struct {
	key       []byte
	maskScale float64
}

// Masking returns a Channel that conceals parameters by adding a
// pseudorandom mask derived from the channel key, the client id and the
// round index. Opening subtracts the same mask.
//
// The mask stream stands in for the pairwise secret masks of a real
// secure-aggregation protocol; because one party holds the key and both
// directions of the exchange, it provides no security against the
// coordinator itself.
func Masking(key []byte, maskScale float64) (Channel, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("Masking: key must not be empty")
	}
	if maskScale <= 0 {
		return nil, fmt.Errorf("Masking: mask scale is %f, must be strictly positive", maskScale)
	}
	return &masking{key: append([]byte(nil), key...), maskScale: maskScale}, nil
}

func (m *masking) Seal(clientID string, round int, p params.Parameters) (params.Parameters, error) {
	return m.apply(clientID, round, p, +1)
}

func (m *masking) Open(clientID string, round int, p params.Parameters) (params.Parameters, error) {
	return m.apply(clientID, round, p, -1)
}

func (m *masking) Simulated() bool { return true }
func (m *masking) String() string  { return "Masking Channel" }

func (m *masking) apply(clientID string, round int, p params.Parameters, sign float64) (params.Parameters, error) {
	if err := checkSealable(p); err != nil {
		return nil, err
	}
	rng := mathrand.New(mathrand.NewSource(m.seed(clientID, round)))
	out := p.Clone()
	// Tensors are visited in name order so the mask stream lines up
	// between Seal and Open.
	for _, name := range out.Names() {
		values := out[name].Values
		for i := range values {
			values[i] += sign * m.maskScale * rng.NormFloat64()
		}
	}
	return out, nil
}

// seed derives the deterministic mask seed for one client and round.
func (m *masking) seed(clientID string, round int) int64 {
	h := sha256.New()
	h.Write(m.key)
	h.Write([]byte(clientID))
	var r [8]byte
	binary.LittleEndian.PutUint64(r[:], uint64(round))
	h.Write(r[:])
	sum := h.Sum(nil)
	return int64(binary.LittleEndian.Uint64(sum[:8]) >> 1)
}

func checkSealable(p params.Parameters) error {
	if len(p) == 0 {
		return fmt.Errorf("channel: empty parameter set")
	}
	return p.Validate()
}
