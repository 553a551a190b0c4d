// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"iter"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
)

// SparseInstance is a sparse feature vector with its target. It is immutable
// once constructed.
type SparseInstance struct {
	target  float64
	indices []int
	values  []float64
}

// NewSparseInstance creates an instance from parallel index and value slices.
// Indices must be non-negative and unique. The slices are copied.
func NewSparseInstance(target float64, indices []int, values []float64) (*SparseInstance, error) {
	if len(indices) != len(values) {
		return nil, errors.NotValidf("%d indices with %d values", len(indices), len(values))
	}
	seen := mapset.NewThreadUnsafeSetWithSize[int](len(indices))
	for _, index := range indices {
		if index < 0 {
			return nil, errors.NotValidf("negative feature index %d", index)
		}
		if !seen.Add(index) {
			return nil, errors.NotValidf("duplicate feature index %d", index)
		}
	}
	return &SparseInstance{
		target:  target,
		indices: append([]int(nil), indices...),
		values:  append([]float64(nil), values...),
	}, nil
}

// MustNewSparseInstance is like NewSparseInstance but panics on invalid input.
func MustNewSparseInstance(target float64, indices []int, values []float64) *SparseInstance {
	x, err := NewSparseInstance(target, indices, values)
	if err != nil {
		panic(err)
	}
	return x
}

// Target returns the regression or classification target.
func (x *SparseInstance) Target() float64 {
	return x.target
}

// Len returns the number of non-zero entries.
func (x *SparseInstance) Len() int {
	return len(x.indices)
}

// Entry returns the i-th non-zero entry.
func (x *SparseInstance) Entry(i int) (index int, value float64) {
	return x.indices[i], x.values[i]
}

// ForEach calls fn for every non-zero entry in order.
func (x *SparseInstance) ForEach(fn func(index int, value float64)) {
	for i, index := range x.indices {
		fn(index, x.values[i])
	}
}

// All returns the non-zero entries in order.
func (x *SparseInstance) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for i, index := range x.indices {
			if !yield(index, x.values[i]) {
				return
			}
		}
	}
}

// MaxIndex returns the largest feature index, or -1 if there is none.
func (x *SparseInstance) MaxIndex() int {
	maxIndex := -1
	for _, index := range x.indices {
		maxIndex = max(maxIndex, index)
	}
	return maxIndex
}
