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
	"testing"

	"github.com/gorse-io/gorse-fm/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDataset(t *testing.T, n int) *Dataset {
	instances := make([]*SparseInstance, n)
	for i := range instances {
		instances[i] = MustNewSparseInstance(float64(i), []int{i % 4}, []float64{float64(i)})
	}
	dataset, err := NewDataset(4, instances)
	require.NoError(t, err)
	return dataset
}

func TestNewDataset(t *testing.T) {
	dataset := newTestDataset(t, 10)
	assert.Equal(t, 4, dataset.NumFeatures())
	assert.Equal(t, 10, dataset.Count())
	assert.Equal(t, 3.0, dataset.Get(3).Target())

	_, err := NewDataset(2, []*SparseInstance{MustNewSparseInstance(0, []int{2}, []float64{1})})
	assert.True(t, errors.Is(err, base.ErrShapeMismatch))
	err = dataset.Append(MustNewSparseInstance(0, []int{4}, []float64{1}))
	assert.True(t, errors.Is(err, base.ErrShapeMismatch))
	assert.Equal(t, 10, dataset.Count())
	err = dataset.Append(nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Equal(t, 10, dataset.Count())
	_, err = NewDataset(4, []*SparseInstance{nil})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestDataset_Shuffle(t *testing.T) {
	dataset := newTestDataset(t, 100)
	before := lo.Map(lo.Range(dataset.Count()), func(i int, _ int) *SparseInstance { return dataset.Get(i) })
	dataset.Shuffle(base.NewRandomGenerator(0))
	after := lo.Map(lo.Range(dataset.Count()), func(i int, _ int) *SparseInstance { return dataset.Get(i) })
	// same instances, new order
	assert.ElementsMatch(t, before, after)
	assert.NotEqual(t, before, after)
	// contents untouched
	for _, instance := range after {
		index, value := instance.Entry(0)
		assert.Equal(t, instance.Target(), value)
		assert.Equal(t, int(instance.Target())%4, index)
	}
	// reproducible
	a, b := newTestDataset(t, 100), newTestDataset(t, 100)
	a.Shuffle(base.NewRandomGenerator(7))
	b.Shuffle(base.NewRandomGenerator(7))
	assert.Equal(t, a.Targets(), b.Targets())
}

func TestDataset_Shuffle_Small(t *testing.T) {
	empty, err := NewDataset(3, nil)
	require.NoError(t, err)
	empty.Shuffle(base.NewRandomGenerator(0))
	assert.Equal(t, 0, empty.Count())

	single := newTestDataset(t, 1)
	instance := single.Get(0)
	single.Shuffle(base.NewRandomGenerator(0))
	assert.Equal(t, 1, single.Count())
	assert.Same(t, instance, single.Get(0))
}

func TestDataset_All(t *testing.T) {
	dataset := newTestDataset(t, 20)
	seq := dataset.All()
	var first []float64
	for instance := range seq {
		first = append(first, instance.Target())
	}
	assert.Equal(t, dataset.Targets(), first)
	// restarting reflects the latest shuffle without shuffling again
	dataset.Shuffle(base.NewRandomGenerator(1))
	var second, third []float64
	for instance := range seq {
		second = append(second, instance.Target())
	}
	dataset.ForEach(func(instance *SparseInstance) {
		third = append(third, instance.Target())
	})
	assert.Equal(t, dataset.Targets(), second)
	assert.Equal(t, second, third)
	assert.NotEqual(t, first, second)
	// early stop
	count := 0
	for range seq {
		count++
		if count == 5 {
			break
		}
	}
	assert.Equal(t, 5, count)
}

func TestDataset_Split(t *testing.T) {
	dataset := newTestDataset(t, 100)
	train, test := dataset.Split(0.2, 0)
	assert.Equal(t, 80, train.Count())
	assert.Equal(t, 20, test.Count())
	assert.Equal(t, 4, train.NumFeatures())
	assert.Equal(t, 4, test.NumFeatures())
	assert.ElementsMatch(t, dataset.Targets(), append(train.Targets(), test.Targets()...))
	// same seed, same split
	_, test2 := dataset.Split(0.2, 0)
	assert.Equal(t, test.Targets(), test2.Targets())
	// ratio out of range
	train, test = dataset.Split(1.5, 0)
	assert.Equal(t, 0, train.Count())
	assert.Equal(t, 100, test.Count())
}
