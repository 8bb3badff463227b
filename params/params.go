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

// Package params contains the model-parameter data model shared by the
// federated privacy core: named tensors holding a flat float64 buffer
// plus a shape, which is also the form parameter sets take on the wire.
package params

import (
	"fmt"
	"sort"
)

// Tensor is a fixed-shape numeric array stored as a flat buffer in
// row-major order. A Tensor with an empty shape is a scalar holding one
// value.
type Tensor struct {
	Shape  []int
	Values []float64
}

// Vector returns a rank-1 Tensor holding the given values.
func Vector(values ...float64) Tensor {
	v := make([]float64, len(values))
	copy(v, values)
	return Tensor{Shape: []int{len(values)}, Values: v}
}

// Scalar returns a rank-0 Tensor holding one value.
func Scalar(value float64) Tensor {
	return Tensor{Values: []float64{value}}
}

// Size returns the number of elements the shape describes.
func (t Tensor) Size() int {
	size := 1
	for _, d := range t.Shape {
		size *= d
	}
	return size
}

// Clone returns a deep copy of the Tensor.
func (t Tensor) Clone() Tensor {
	c := Tensor{Shape: make([]int, len(t.Shape)), Values: make([]float64, len(t.Values))}
	copy(c.Shape, t.Shape)
	copy(c.Values, t.Values)
	return c
}

// ShapeEqual reports whether two tensors have identical shapes.
func (t Tensor) ShapeEqual(o Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i, d := range t.Shape {
		if o.Shape[i] != d {
			return false
		}
	}
	return true
}

// Validate returns an error if the buffer length disagrees with the shape
// or any dimension is negative.
func (t Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("tensor shape %v contains a negative dimension", t.Shape)
		}
	}
	if len(t.Values) != t.Size() {
		return fmt.Errorf("tensor with shape %v must hold %d values, holds %d", t.Shape, t.Size(), len(t.Values))
	}
	return nil
}

// Parameters maps parameter names to tensors. It is the unit a client
// submits each round and the unit the aggregator publishes back.
type Parameters map[string]Tensor

// Validate returns an error if any tensor's buffer disagrees with its shape.
func (p Parameters) Validate() error {
	for _, name := range p.Names() {
		if err := p[name].Validate(); err != nil {
			return fmt.Errorf("parameter %q: %w", name, err)
		}
	}
	return nil
}

// Names returns the parameter names in lexicographic order.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NumValues returns the total number of float64 entries across all tensors.
func (p Parameters) NumValues() int {
	n := 0
	for _, t := range p {
		n += len(t.Values)
	}
	return n
}

// Clone returns a deep copy of the parameter set.
func (p Parameters) Clone() Parameters {
	c := make(Parameters, len(p))
	for name, t := range p {
		c[name] = t.Clone()
	}
	return c
}

// Equal reports whether two parameter sets hold exactly the same names,
// shapes and values.
func (p Parameters) Equal(o Parameters) bool {
	if len(p) != len(o) {
		return false
	}
	for name, t := range p {
		ot, ok := o[name]
		if !ok || !t.ShapeEqual(ot) || len(t.Values) != len(ot.Values) {
			return false
		}
		for i, v := range t.Values {
			if ot.Values[i] != v {
				return false
			}
		}
	}
	return true
}

// CheckSchema returns an error if o does not hold exactly the same
// parameter names with the same shapes as p. Aggregating parameter sets
// with diverging schemas is never well defined.
func (p Parameters) CheckSchema(o Parameters) error {
	for _, name := range p.Names() {
		ot, ok := o[name]
		if !ok {
			return fmt.Errorf("parameter %q is missing", name)
		}
		if !p[name].ShapeEqual(ot) {
			return fmt.Errorf("parameter %q has shape %v, want %v", name, ot.Shape, p[name].Shape)
		}
	}
	for _, name := range o.Names() {
		if _, ok := p[name]; !ok {
			return fmt.Errorf("parameter %q is unexpected", name)
		}
	}
	return nil
}

// Flatten concatenates all tensor buffers in lexicographic name order
// into one vector, the form used for cross-client distance computations.
func (p Parameters) Flatten() []float64 {
	flat := make([]float64, 0, p.NumValues())
	for _, name := range p.Names() {
		flat = append(flat, p[name].Values...)
	}
	return flat
}
