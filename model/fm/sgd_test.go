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

package fm

import (
	"math"
	"testing"

	"github.com/gorse-io/gorse-fm/base"
	"github.com/gorse-io/gorse-fm/dataset"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSyntheticDataset samples dense instances in [0, 1) and labels them with
// a known factorization machine plus Gaussian noise.
func newSyntheticDataset(t *testing.T, n int, seed int64) (*dataset.Dataset, *FactorizationMachine) {
	truth, err := New(Linear, 2.0,
		[]float64{0.5, -0.3, 0.8, 0.1, -0.6},
		base.NewRandomGenerator(100).NormalMatrix64(5, 3, 0, 0.3))
	require.NoError(t, err)
	rng := base.NewRandomGenerator(seed)
	instances := make([]*dataset.SparseInstance, n)
	for i := range instances {
		values := rng.UniformVector64(5, 0, 1)
		x := dataset.MustNewSparseInstance(0, []int{0, 1, 2, 3, 4}, values)
		target := truth.RawScore(x) + rng.NormFloat64()*0.1
		instances[i] = dataset.MustNewSparseInstance(target, []int{0, 1, 2, 3, 4}, values)
	}
	ds, err := dataset.NewDataset(5, instances)
	require.NoError(t, err)
	return ds, truth
}

func TestNewSGD_Invalid(t *testing.T) {
	reg := NewRegularization(1, 0, 0, 0)
	for _, params := range []model.Params{
		{model.Lr: 0.0},
		{model.Lr: -0.1},
		{model.Lr: math.Inf(1)},
		{model.Lr: math.NaN()},
		{model.NEpochs: -1},
	} {
		_, err := NewSGD(params, SquaredError{}, reg)
		assert.True(t, errors.Is(err, errors.NotValid), params)
		_, err = NewMomentumSGD(params, SquaredError{}, reg)
		assert.True(t, errors.Is(err, errors.NotValid), params)
	}
	for _, momentum := range []float64{-0.1, 1, 1.5, math.NaN()} {
		_, err := NewMomentumSGD(model.Params{model.Momentum: momentum}, SquaredError{}, reg)
		assert.True(t, errors.Is(err, errors.NotValid), momentum)
	}
	_, err := NewSGD(nil, nil, reg)
	assert.True(t, errors.Is(err, errors.NotValid))
	// plain SGD ignores momentum
	_, err = NewSGD(model.Params{model.Momentum: 2.0}, SquaredError{}, reg)
	assert.NoError(t, err)
	// zero epochs is allowed
	_, err = NewSGD(model.Params{model.NEpochs: 0}, SquaredError{}, reg)
	assert.NoError(t, err)
}

func TestSGD_Learn_ShapeMismatch(t *testing.T) {
	trainSet, _ := newSyntheticDataset(t, 10, 0)
	otherSet, err := dataset.NewDataset(6, nil)
	require.NoError(t, err)
	fm := NewRandom(Linear, 5, 2, base.NewRandomGenerator(0), 0.1)

	sgd, err := NewSGD(nil, SquaredError{}, NewRegularization(5, 0, 0, 0))
	require.NoError(t, err)
	err = sgd.Learn(fm, otherSet, nil)
	assert.True(t, errors.Is(err, base.ErrShapeMismatch))
	err = sgd.Learn(fm, trainSet, otherSet)
	assert.True(t, errors.Is(err, base.ErrShapeMismatch))
	err = sgd.Learn(nil, trainSet, nil)
	assert.True(t, errors.Is(err, errors.NotValid))

	sgd, err = NewSGD(nil, SquaredError{}, NewRegularization(4, 0, 0, 0))
	require.NoError(t, err)
	err = sgd.Learn(fm, trainSet, nil)
	assert.True(t, errors.Is(err, base.ErrShapeMismatch))
	// nothing is trained on failure
	assert.Equal(t, make([]float64, 5), fm.Weights)
}

func TestSGD_Learn_SingleStep(t *testing.T) {
	fm, err := New(Linear, 0.1, []float64{0.2, 0.3}, [][]float64{{0.1, 0.2}, {0.3, 0.4}})
	require.NoError(t, err)
	x := dataset.MustNewSparseInstance(1, []int{0, 1}, []float64{1, 2})
	trainSet, err := dataset.NewDataset(2, []*dataset.SparseInstance{x})
	require.NoError(t, err)
	reg := Regularization{Bias: 0.5, Weights: []float64{0.1, 0.2}, Factors: []float64{0.3, 0.4}}
	const lr = 0.1

	// expected step from the old parameters
	before := fm.Clone()
	lambda := -2 * (1 - before.RawScore(x))
	sum := []float64{
		before.Factors[0][0]*1 + before.Factors[1][0]*2,
		before.Factors[0][1]*1 + before.Factors[1][1]*2,
	}
	values := []float64{1, 2}
	expectedBias := before.Bias - lr*(lambda+reg.Bias*before.Bias)
	expectedWeights := make([]float64, 2)
	expectedFactors := [][]float64{make([]float64, 2), make([]float64, 2)}
	for i, xi := range values {
		expectedWeights[i] = before.Weights[i] - lr*(lambda*xi+reg.Weights[i]*before.Weights[i])
		for f := 0; f < 2; f++ {
			v := before.Factors[i][f]
			expectedFactors[i][f] = v - lr*(lambda*xi*sum[f]-lambda*xi*xi*v+reg.Factors[i]*v)
		}
	}

	sgd, err := NewSGD(model.Params{model.Lr: lr, model.NEpochs: 1}, SquaredError{}, reg)
	require.NoError(t, err)
	require.NoError(t, sgd.Learn(fm, trainSet, nil))
	assert.InDelta(t, expectedBias, fm.Bias, 1e-12)
	assert.InDeltaSlice(t, expectedWeights, fm.Weights, 1e-12)
	for i := range expectedFactors {
		assert.InDeltaSlice(t, expectedFactors[i], fm.Factors[i], 1e-12)
	}
}

func TestSGD_Learn_Converge(t *testing.T) {
	trainSet, _ := newSyntheticDataset(t, 200, 0)
	fm := NewRandom(Linear, 5, 3, base.NewRandomGenerator(1), 0.1)
	sgd, err := NewSGD(model.Params{
		model.Lr:          0.01,
		model.NEpochs:     50,
		model.RandomState: 2,
	}, SquaredError{}, NewRegularization(5, 0.01, 0.01, 0.01))
	require.NoError(t, err)
	var reports []EpochReport
	sgd.SetObserver(func(r EpochReport) { reports = append(reports, r) })
	require.NoError(t, sgd.Learn(fm, trainSet, nil))

	require.Len(t, reports, 51)
	for i, r := range reports {
		assert.Equal(t, i, r.Epoch)
		assert.True(t, math.IsNaN(r.ValidError))
	}
	initial := reports[0].TrainError
	final := reports[50].TrainError
	assert.Equal(t, sgd.Error(fm, trainSet), final)
	assert.Less(t, final, 0.1*initial)
}

func TestSGD_Learn_MomentumConverge(t *testing.T) {
	trainSet, _ := newSyntheticDataset(t, 200, 0)
	validSet, _ := newSyntheticDataset(t, 50, 1)
	fm := NewRandom(Linear, 5, 3, base.NewRandomGenerator(1), 0.1)
	sgd, err := NewMomentumSGD(model.Params{
		model.Lr:       0.001,
		model.NEpochs:  50,
		model.Momentum: 0.9,
	}, SquaredError{}, NewRegularization(5, 0.01, 0.01, 0.01))
	require.NoError(t, err)
	initial := sgd.Error(fm, validSet)
	require.NoError(t, sgd.Learn(fm, trainSet, validSet))
	assert.Less(t, sgd.Error(fm, validSet), 0.1*initial)
}

func TestSGD_Learn_Reproducible(t *testing.T) {
	for _, newOptimizer := range []func(model.Params, Loss, Regularization) (*SGD, error){NewSGD, NewMomentumSGD} {
		params := model.Params{model.Lr: 0.005, model.NEpochs: 5, model.RandomState: 3}
		var models []*FactorizationMachine
		for run := 0; run < 2; run++ {
			trainSet, _ := newSyntheticDataset(t, 50, 0)
			fm := NewRandom(Linear, 5, 3, base.NewRandomGenerator(1), 0.1)
			sgd, err := newOptimizer(params, SquaredError{}, NewRegularization(5, 0.01, 0.01, 0.01))
			require.NoError(t, err)
			require.NoError(t, sgd.Learn(fm, trainSet, nil))
			models = append(models, fm)
		}
		assert.Equal(t, models[0], models[1])
	}
}

func TestSGD_Learn_ZeroMomentum(t *testing.T) {
	trainSet, _ := newSyntheticDataset(t, 50, 0)
	params := model.Params{model.Lr: 0.005, model.NEpochs: 5, model.RandomState: 3, model.Momentum: 0.0}
	reg := NewRegularization(5, 0.01, 0.01, 0.01)
	plain := NewRandom(Linear, 5, 3, base.NewRandomGenerator(1), 0.1)
	momentum := plain.Clone()

	sgd, err := NewSGD(params, SquaredError{}, reg)
	require.NoError(t, err)
	require.NoError(t, sgd.Learn(plain, trainSet, nil))
	// Learn shuffles in place
	trainSet, _ = newSyntheticDataset(t, 50, 0)
	sgd, err = NewMomentumSGD(params, SquaredError{}, reg)
	require.NoError(t, err)
	require.NoError(t, sgd.Learn(momentum, trainSet, nil))

	assert.InDelta(t, plain.Bias, momentum.Bias, 1e-12)
	assert.InDeltaSlice(t, plain.Weights, momentum.Weights, 1e-12)
	for i := range plain.Factors {
		assert.InDeltaSlice(t, plain.Factors[i], momentum.Factors[i], 1e-12)
	}
}

func TestSGD_Learn_ResetVelocity(t *testing.T) {
	x := dataset.MustNewSparseInstance(1, []int{0, 1}, []float64{1, 2})
	trainSet, err := dataset.NewDataset(2, []*dataset.SparseInstance{x})
	require.NoError(t, err)
	params := model.Params{model.Lr: 0.01, model.NEpochs: 3, model.Momentum: 0.5}
	reg := NewRegularization(2, 0.01, 0.01, 0.01)

	fm := NewRandom(Linear, 2, 2, base.NewRandomGenerator(0), 0.1)
	sgd, err := NewMomentumSGD(params, SquaredError{}, reg)
	require.NoError(t, err)
	require.NoError(t, sgd.Learn(fm, trainSet, nil))
	resumed := fm.Clone()
	require.NoError(t, sgd.Learn(fm, trainSet, nil))

	// a second call starts from zero velocity, like a fresh optimizer
	fresh, err := NewMomentumSGD(params, SquaredError{}, reg)
	require.NoError(t, err)
	require.NoError(t, fresh.Learn(resumed, trainSet, nil))
	assert.Equal(t, fm, resumed)
}

func TestSGD_Learn_Shrinkage(t *testing.T) {
	instances := make([]*dataset.SparseInstance, 20)
	for i := range instances {
		instances[i] = dataset.MustNewSparseInstance(0, []int{0, 1, 2}, []float64{0.5, 0.5, 0.5})
	}
	trainSet, err := dataset.NewDataset(3, instances)
	require.NoError(t, err)
	fm, err := New(Linear, 1, []float64{0.5, 0.5, 0.5}, [][]float64{{0.3, 0.3}, {0.3, 0.3}, {0.3, 0.3}})
	require.NoError(t, err)

	sgd, err := NewSGD(model.Params{model.Lr: 0.01, model.NEpochs: 20}, SquaredError{}, NewRegularization(3, 0.1, 0.1, 0.1))
	require.NoError(t, err)
	previous := fm.Clone()
	epochs := 0
	sgd.SetObserver(func(r EpochReport) {
		if r.Epoch == 0 {
			return
		}
		epochs++
		assert.Less(t, math.Abs(fm.Bias), math.Abs(previous.Bias))
		for i := range fm.Weights {
			assert.Less(t, math.Abs(fm.Weights[i]), math.Abs(previous.Weights[i]))
			for f := range fm.Factors[i] {
				assert.Less(t, math.Abs(fm.Factors[i][f]), math.Abs(previous.Factors[i][f]))
			}
		}
		previous = fm.Clone()
	})
	require.NoError(t, sgd.Learn(fm, trainSet, nil))
	assert.Equal(t, 20, epochs)
}

func TestSGD_Learn_Logistic(t *testing.T) {
	rng := base.NewRandomGenerator(0)
	instances := make([]*dataset.SparseInstance, 200)
	for i := range instances {
		values := rng.UniformVector64(2, -1, 1)
		target := 0.0
		if values[0]+values[1] > 0 {
			target = 1
		}
		instances[i] = dataset.MustNewSparseInstance(target, []int{0, 1}, values)
	}
	trainSet, err := dataset.NewDataset(2, instances)
	require.NoError(t, err)
	fm := NewRandom(Logistic, 2, 2, base.NewRandomGenerator(0), 0.01)
	sgd, err := NewSGD(model.Params{model.Lr: 0.1, model.NEpochs: 30}, LogLoss{}, NewRegularization(2, 0, 0.001, 0.001))
	require.NoError(t, err)
	initial := sgd.Error(fm, trainSet)
	assert.InDelta(t, math.Log(2), initial, 0.01)
	require.NoError(t, sgd.Learn(fm, trainSet, nil))
	assert.Less(t, sgd.Error(fm, trainSet), 0.5*initial)
	score := EvaluateClassification(fm, trainSet)
	assert.Greater(t, score.Accuracy, 0.9)
}

func TestSGD_Error(t *testing.T) {
	fm, err := New(Linear, 1, []float64{0}, [][]float64{{0}})
	require.NoError(t, err)
	sgd, err := NewSGD(nil, SquaredError{}, NewRegularization(1, 0, 0, 0))
	require.NoError(t, err)
	empty, err := dataset.NewDataset(1, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(sgd.Error(fm, empty)))
	assert.True(t, math.IsNaN(sgd.Error(fm, nil)))
	set, err := dataset.NewDataset(1, []*dataset.SparseInstance{
		dataset.MustNewSparseInstance(3, nil, nil),
		dataset.MustNewSparseInstance(1, nil, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, sgd.Error(fm, set))
}
