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
	"time"

	"github.com/gorse-io/gorse-fm/base"
	"github.com/gorse-io/gorse-fm/base/log"
	"github.com/gorse-io/gorse-fm/dataset"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Optimizer fits a factorization machine in place.
type Optimizer interface {
	// Learn runs all epochs over trainSet, reporting errors on both sets.
	Learn(fm *FactorizationMachine, trainSet, validSet *dataset.Dataset) error
	// Error is the mean loss of fm over a dataset. It is NaN for an empty dataset.
	Error(fm *FactorizationMachine, set *dataset.Dataset) float64
}

// EpochReport summarizes an epoch. Epoch 0 describes the model before training.
type EpochReport struct {
	Epoch      int
	TrainError float64
	ValidError float64
	Elapsed    time.Duration
}

// updateRule turns a gradient into the step taken for one parameter.
type updateRule interface {
	bias(gradient float64) float64
	weight(index int, gradient float64) float64
	factor(index, factor int, gradient float64) float64
}

type plainRule struct{}

func (plainRule) bias(gradient float64) float64 { return gradient }

func (plainRule) weight(_ int, gradient float64) float64 { return gradient }

func (plainRule) factor(_, _ int, gradient float64) float64 { return gradient }

// momentumRule keeps v := momentum * v + gradient for every parameter.
type momentumRule struct {
	momentum        float64
	velocityBias    float64
	velocityWeights []float64
	velocityFactors [][]float64
}

func newMomentumRule(momentum float64, numFeatures, nFactors int) *momentumRule {
	rule := &momentumRule{
		momentum:        momentum,
		velocityWeights: make([]float64, numFeatures),
		velocityFactors: make([][]float64, numFeatures),
	}
	for i := range rule.velocityFactors {
		rule.velocityFactors[i] = make([]float64, nFactors)
	}
	return rule
}

func (rule *momentumRule) bias(gradient float64) float64 {
	rule.velocityBias = rule.momentum*rule.velocityBias + gradient
	return rule.velocityBias
}

func (rule *momentumRule) weight(index int, gradient float64) float64 {
	rule.velocityWeights[index] = rule.momentum*rule.velocityWeights[index] + gradient
	return rule.velocityWeights[index]
}

func (rule *momentumRule) factor(index, factor int, gradient float64) float64 {
	rule.velocityFactors[index][factor] = rule.momentum*rule.velocityFactors[index][factor] + gradient
	return rule.velocityFactors[index][factor]
}

// SGD is pointwise stochastic gradient descent, optionally with momentum.
//
// Hyper-parameters:
//
//	Lr          - The learning rate. Default is 0.01.
//	NEpochs     - The number of passes over the training set. Default is 20.
//	Momentum    - The decay of velocity (momentum variant only). Default is 0.9.
//	RandomState - The seed of the shuffling order. Default is 0.
type SGD struct {
	lr          float64
	nEpochs     int
	momentum    float64
	useMomentum bool
	loss        Loss
	reg         Regularization
	rng         base.RandomGenerator
	verbose     int
	observer    func(EpochReport)
}

// NewSGD creates a plain SGD optimizer.
func NewSGD(params model.Params, loss Loss, reg Regularization) (*SGD, error) {
	return newSGD(params, loss, reg, false)
}

// NewMomentumSGD creates a SGD optimizer with momentum.
func NewMomentumSGD(params model.Params, loss Loss, reg Regularization) (*SGD, error) {
	return newSGD(params, loss, reg, true)
}

func newSGD(params model.Params, loss Loss, reg Regularization, useMomentum bool) (*SGD, error) {
	sgd := &SGD{
		lr:          params.GetFloat64(model.Lr, 0.01),
		nEpochs:     params.GetInt(model.NEpochs, 20),
		useMomentum: useMomentum,
		loss:        loss,
		reg:         reg,
		rng:         base.NewRandomGenerator(params.GetInt64(model.RandomState, 0)),
	}
	if useMomentum {
		sgd.momentum = params.GetFloat64(model.Momentum, 0.9)
	}
	// a NaN learning rate fails every comparison
	if !(sgd.lr > 0) || math.IsInf(sgd.lr, 1) {
		return nil, errors.NotValidf("learning rate %v", sgd.lr)
	}
	if sgd.nEpochs < 0 {
		return nil, errors.NotValidf("number of epochs %v", sgd.nEpochs)
	}
	if !(sgd.momentum >= 0 && sgd.momentum < 1) {
		return nil, errors.NotValidf("momentum %v", sgd.momentum)
	}
	if loss == nil {
		return nil, errors.NotValidf("nil loss")
	}
	return sgd, nil
}

// SetVerbose logs errors every verbose epochs. Zero disables logging.
func (sgd *SGD) SetVerbose(verbose int) *SGD {
	sgd.verbose = verbose
	return sgd
}

// SetObserver receives a report after every epoch, epoch 0 included.
func (sgd *SGD) SetObserver(observer func(EpochReport)) *SGD {
	sgd.observer = observer
	return sgd
}

// Error is the mean loss of fm over a dataset.
func (sgd *SGD) Error(fm *FactorizationMachine, set *dataset.Dataset) float64 {
	if set == nil || set.Count() == 0 {
		return math.NaN()
	}
	sum := 0.0
	for x := range set.All() {
		sum += sgd.loss.Value(fm.Predict(x), x.Target())
	}
	return sum / float64(set.Count())
}

// Learn fits fm on trainSet. The training set is shuffled before every epoch.
// validSet may be nil; it is only used for reporting.
func (sgd *SGD) Learn(fm *FactorizationMachine, trainSet, validSet *dataset.Dataset) error {
	if fm == nil || trainSet == nil {
		return errors.NotValidf("nil model or training set")
	}
	if trainSet.NumFeatures() != fm.NumFeatures() {
		return base.ShapeMismatchf("training set has %d features, model has %d", trainSet.NumFeatures(), fm.NumFeatures())
	}
	if validSet != nil && validSet.NumFeatures() != fm.NumFeatures() {
		return base.ShapeMismatchf("validation set has %d features, model has %d", validSet.NumFeatures(), fm.NumFeatures())
	}
	if err := sgd.reg.check(fm.NumFeatures()); err != nil {
		return errors.Trace(err)
	}

	var rule updateRule = plainRule{}
	if sgd.useMomentum {
		rule = newMomentumRule(sgd.momentum, fm.NumFeatures(), fm.NumFactors())
	}
	sum := make([]float64, fm.NumFactors())
	sgd.report(fm, trainSet, validSet, 0, 0)
	for epoch := 1; epoch <= sgd.nEpochs; epoch++ {
		start := time.Now()
		trainSet.Shuffle(sgd.rng)
		for x := range trainSet.All() {
			sgd.update(fm, x, rule, sum)
		}
		sgd.report(fm, trainSet, validSet, epoch, time.Since(start))
	}
	return nil
}

// update takes one step on a single instance. sum receives \sum_i v_{i,f} x_i
// before any parameter of this step changes.
func (sgd *SGD) update(fm *FactorizationMachine, x *dataset.SparseInstance, rule updateRule, sum []float64) {
	lambda := sgd.loss.Gradient(fm.predict(x, sum), x.Target())
	// Update bias
	//   \frac {\partial\hat{y}(x)} {\partial w_0} = 1
	fm.Bias -= sgd.lr * rule.bias(lambda+sgd.reg.Bias*fm.Bias)
	// Update weights
	//   \frac {\partial\hat{y}(x)} {\partial w_i} = x_i
	x.ForEach(func(i int, xi float64) {
		fm.Weights[i] -= sgd.lr * rule.weight(i, lambda*xi+sgd.reg.Weights[i]*fm.Weights[i])
	})
	// Update factors
	//   \frac {\partial\hat{y}(x)} {\partial v_{i,f}} = x_i \sum_j v_{j,f} x_j - v_{i,f} x^2_i
	x.ForEach(func(i int, xi float64) {
		factors := fm.Factors[i]
		for f := range factors {
			gradient := lambda*xi*sum[f] - lambda*xi*xi*factors[f] + sgd.reg.Factors[i]*factors[f]
			factors[f] -= sgd.lr * rule.factor(i, f, gradient)
		}
	})
}

func (sgd *SGD) report(fm *FactorizationMachine, trainSet, validSet *dataset.Dataset, epoch int, elapsed time.Duration) {
	logged := sgd.verbose > 0 && (epoch%sgd.verbose == 0 || epoch == sgd.nEpochs)
	if !logged && sgd.observer == nil {
		return
	}
	r := EpochReport{
		Epoch:      epoch,
		TrainError: sgd.Error(fm, trainSet),
		ValidError: sgd.Error(fm, validSet),
		Elapsed:    elapsed,
	}
	if logged {
		log.Logger().Info("fit factorization machine",
			zap.Int("epoch", epoch),
			zap.Int("n_epochs", sgd.nEpochs),
			zap.Float64("train_error", r.TrainError),
			zap.Float64("valid_error", r.ValidError),
			zap.Duration("elapsed", elapsed))
	}
	if sgd.observer != nil {
		sgd.observer(r)
	}
}
