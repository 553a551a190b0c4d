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
	"github.com/gorse-io/gorse-fm/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Dataset is an ordered collection of sparse instances over a fixed number of
// features. Shuffling changes the order of instances, never their contents.
type Dataset struct {
	numFeatures int
	instances   []*SparseInstance
}

// NewDataset creates a dataset. Every feature index must be less than numFeatures.
func NewDataset(numFeatures int, instances []*SparseInstance) (*Dataset, error) {
	dataset := &Dataset{numFeatures: numFeatures}
	for _, instance := range instances {
		if err := dataset.Append(instance); err != nil {
			return nil, err
		}
	}
	return dataset, nil
}

// NumFeatures returns the number of features.
func (dataset *Dataset) NumFeatures() int {
	return dataset.numFeatures
}

// Count returns the number of instances.
func (dataset *Dataset) Count() int {
	return len(dataset.instances)
}

// Get returns the i-th instance in the current order.
func (dataset *Dataset) Get(i int) *SparseInstance {
	return dataset.instances[i]
}

// Append adds an instance to the end of the dataset.
func (dataset *Dataset) Append(instance *SparseInstance) error {
	if instance == nil {
		return errors.NotValidf("nil instance")
	}
	if maxIndex := instance.MaxIndex(); maxIndex >= dataset.numFeatures {
		return base.ShapeMismatchf("feature index %d out of range [0, %d)", maxIndex, dataset.numFeatures)
	}
	dataset.instances = append(dataset.instances, instance)
	return nil
}

// Shuffle permutes the order of instances in place.
func (dataset *Dataset) Shuffle(rng base.RandomGenerator) {
	rng.Permute(len(dataset.instances), func(i, j int) {
		dataset.instances[i], dataset.instances[j] = dataset.instances[j], dataset.instances[i]
	})
}

// All returns the instances in their current order. The sequence may be
// iterated many times; each pass observes the order left by the latest Shuffle.
func (dataset *Dataset) All() iter.Seq[*SparseInstance] {
	return func(yield func(*SparseInstance) bool) {
		for _, instance := range dataset.instances {
			if !yield(instance) {
				return
			}
		}
	}
}

// ForEach calls fn for every instance in the current order.
func (dataset *Dataset) ForEach(fn func(instance *SparseInstance)) {
	for _, instance := range dataset.instances {
		fn(instance)
	}
}

// Targets returns the targets in the current order.
func (dataset *Dataset) Targets() []float64 {
	return lo.Map(dataset.instances, func(instance *SparseInstance, _ int) float64 {
		return instance.Target()
	})
}

// Split a dataset to training set and test set. The test set receives
// int(Count() * ratio) randomly chosen instances; both keep the relative
// order of the source and its number of features.
func (dataset *Dataset) Split(ratio float64, seed int64) (*Dataset, *Dataset) {
	trainSet := &Dataset{numFeatures: dataset.numFeatures}
	testSet := &Dataset{numFeatures: dataset.numFeatures}
	numTestSize := min(max(int(float64(dataset.Count())*ratio), 0), dataset.Count())
	rng := base.NewRandomGenerator(seed)
	sampledIndex := mapset.NewSet(rng.Perm(dataset.Count())[:numTestSize]...)
	for i, instance := range dataset.instances {
		if sampledIndex.Contains(i) {
			testSet.instances = append(testSet.instances, instance)
		} else {
			trainSet.instances = append(trainSet.instances, instance)
		}
	}
	return trainSet, testSet
}
