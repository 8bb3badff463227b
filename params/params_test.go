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

package params

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTensorValidate(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		tensor  Tensor
		wantErr bool
	}{
		{"vector", Vector(1, 2, 3), false},
		{"scalar", Scalar(4), false},
		{"matrix", Tensor{Shape: []int{2, 2}, Values: []float64{1, 2, 3, 4}}, false},
		{"empty vector", Vector(), false},
		{"buffer shorter than shape", Tensor{Shape: []int{3}, Values: []float64{1}}, true},
		{"buffer longer than shape", Tensor{Shape: []int{1}, Values: []float64{1, 2}}, true},
		{"negative dimension", Tensor{Shape: []int{-1}, Values: nil}, true},
	} {
		if err := tc.tensor.Validate(); (err != nil) != tc.wantErr {
			t.Errorf("Validate: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestTensorSize(t *testing.T) {
	for _, tc := range []struct {
		desc   string
		tensor Tensor
		want   int
	}{
		{"scalar has size 1", Scalar(1), 1},
		{"vector", Vector(1, 2, 3), 3},
		{"matrix", Tensor{Shape: []int{2, 3}, Values: make([]float64, 6)}, 6},
		{"zero dimension", Tensor{Shape: []int{0}, Values: nil}, 0},
	} {
		if got := tc.tensor.Size(); got != tc.want {
			t.Errorf("Size: when %s got %d, want %d", tc.desc, got, tc.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := Parameters{"w": Vector(1, 2, 3), "b": Scalar(0.5)}
	c := p.Clone()
	if !p.Equal(c) {
		t.Fatalf("Clone() = %v, want equal to original %v", c, p)
	}
	c["w"].Values[0] = 99
	if p["w"].Values[0] != 1 {
		t.Errorf("mutating the clone changed the original: got %f, want 1", p["w"].Values[0])
	}
}

func TestEqual(t *testing.T) {
	base := Parameters{"w": Vector(1, 2), "b": Scalar(3)}
	for _, tc := range []struct {
		desc  string
		other Parameters
		want  bool
	}{
		{"identical sets", Parameters{"w": Vector(1, 2), "b": Scalar(3)}, true},
		{"different value", Parameters{"w": Vector(1, 2.5), "b": Scalar(3)}, false},
		{"missing name", Parameters{"w": Vector(1, 2)}, false},
		{"extra name", Parameters{"w": Vector(1, 2), "b": Scalar(3), "c": Scalar(0)}, false},
		{"different shape", Parameters{"w": Tensor{Shape: []int{2, 1}, Values: []float64{1, 2}}, "b": Scalar(3)}, false},
	} {
		if got := base.Equal(tc.other); got != tc.want {
			t.Errorf("Equal: when %s got %t, want %t", tc.desc, got, tc.want)
		}
	}
}

func TestCheckSchema(t *testing.T) {
	base := Parameters{"w": Vector(1, 2), "b": Scalar(3)}
	for _, tc := range []struct {
		desc    string
		other   Parameters
		wantErr bool
	}{
		{"same schema different values", Parameters{"w": Vector(9, 9), "b": Scalar(9)}, false},
		{"missing parameter", Parameters{"w": Vector(1, 2)}, true},
		{"unexpected parameter", Parameters{"w": Vector(1, 2), "b": Scalar(3), "extra": Scalar(0)}, true},
		{"shape mismatch", Parameters{"w": Vector(1, 2, 3), "b": Scalar(3)}, true},
	} {
		if err := base.CheckSchema(tc.other); (err != nil) != tc.wantErr {
			t.Errorf("CheckSchema: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestFlatten(t *testing.T) {
	p := Parameters{
		"b": Scalar(0.5),
		"w": Vector(1, 2, 3),
	}
	// Names are flattened in lexicographic order.
	want := []float64{0.5, 1, 2, 3}
	if diff := cmp.Diff(want, p.Flatten()); diff != "" {
		t.Errorf("Flatten() returned diff (-want +got):\n%s", diff)
	}
}

func TestNames(t *testing.T) {
	p := Parameters{"z": Scalar(1), "a": Scalar(2), "m": Scalar(3)}
	want := []string{"a", "m", "z"}
	if diff := cmp.Diff(want, p.Names()); diff != "" {
		t.Errorf("Names() returned diff (-want +got):\n%s", diff)
	}
}
