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

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/gorse-fm/dataset"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Estimator builds and trains a factorization machine from hyper-parameters.
//
// Hyper-parameters:
//
//	NFactors    - The number of latent factors. Default is 8.
//	InitStdDev  - The standard deviation of initial factors. Default is 0.01.
//	Momentum    - Momentum of SGD, plain SGD if zero. Default is 0.
//	Lr, NEpochs, RandomState - see SGD.
//	Reg, RegBias, RegWeight, RegFactor - see NewRegularizationFromParams.
type Estimator struct {
	model.BaseModel
	Model *FactorizationMachine
	link  Link
	loss  Loss
	// hyper parameters
	nFactors   int
	initStdDev float64
	momentum   float64
	// fit options
	verbose  int
	observer func(EpochReport)
}

var _ model.Model = (*Estimator)(nil)

// NewEstimator creates an estimator fitting models with the given link and loss.
func NewEstimator(link Link, loss Loss, params model.Params) *Estimator {
	e := &Estimator{link: link, loss: loss}
	e.SetParams(params)
	return e
}

// NewRegressor creates an estimator with the linear link and squared error.
func NewRegressor(params model.Params) *Estimator {
	return NewEstimator(Linear, SquaredError{}, params)
}

// NewClassifier creates an estimator with the logistic link and log loss.
func NewClassifier(params model.Params) *Estimator {
	return NewEstimator(Logistic, LogLoss{}, params)
}

func (e *Estimator) SetParams(params model.Params) {
	e.BaseModel.SetParams(params)
	e.nFactors = e.Params.GetInt(model.NFactors, 8)
	e.initStdDev = e.Params.GetFloat64(model.InitStdDev, 0.01)
	e.momentum = e.Params.GetFloat64(model.Momentum, 0)
}

// Link returns the link of fitted models.
func (e *Estimator) Link() Link {
	return e.link
}

// SetVerbose logs training errors every verbose epochs.
func (e *Estimator) SetVerbose(verbose int) *Estimator {
	e.verbose = verbose
	return e
}

// SetObserver receives a report after every epoch.
func (e *Estimator) SetObserver(observer func(EpochReport)) *Estimator {
	e.observer = observer
	return e
}

func (e *Estimator) GetParamsGrid() model.ParamsGrid {
	return model.ParamsGrid{
		model.NFactors:   []interface{}{4, 8, 16},
		model.Lr:         []interface{}{0.001, 0.005, 0.01, 0.05},
		model.Reg:        []interface{}{0.001, 0.01, 0.1},
		model.InitStdDev: []interface{}{0.001, 0.01, 0.1},
	}
}

func (e *Estimator) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors:   lo.Must(trial.SuggestInt(string(model.NFactors), 2, 16)),
		model.Lr:         lo.Must(trial.SuggestLogFloat(string(model.Lr), 0.001, 0.1)),
		model.Reg:        lo.Must(trial.SuggestLogFloat(string(model.Reg), 0.0001, 0.1)),
		model.InitStdDev: lo.Must(trial.SuggestLogFloat(string(model.InitStdDev), 0.001, 0.1)),
	}
}

func (e *Estimator) Clear() {
	e.Model = nil
}

func (e *Estimator) Invalid() bool {
	return e == nil || e.Model == nil
}

// Clone returns a copy with its own parameters and fitted model.
func (e *Estimator) Clone() *Estimator {
	c := &Estimator{
		link:     e.link,
		loss:     e.loss,
		verbose:  e.verbose,
		observer: e.observer,
	}
	c.SetParams(e.Params.Copy())
	if e.Model != nil {
		c.Model = e.Model.Clone()
	}
	return c
}

// Fit trains a new model on trainSet and scores it on validSet.
func (e *Estimator) Fit(trainSet, validSet *dataset.Dataset) (Score, error) {
	if trainSet == nil {
		return Score{}, errors.NotValidf("nil training set")
	}
	if e.nFactors < 0 {
		return Score{}, errors.NotValidf("number of factors %v", e.nFactors)
	}
	numFeatures := trainSet.NumFeatures()
	fm := NewRandom(e.link, numFeatures, e.nFactors, e.GetRandomGenerator(), e.initStdDev)
	reg := NewRegularizationFromParams(numFeatures, e.Params)
	var (
		optimizer *SGD
		err       error
	)
	if e.momentum > 0 {
		optimizer, err = NewMomentumSGD(e.Params, e.loss, reg)
	} else {
		optimizer, err = NewSGD(e.Params, e.loss, reg)
	}
	if err != nil {
		return Score{}, errors.Trace(err)
	}
	optimizer.SetVerbose(e.verbose).SetObserver(e.observer)
	if err = optimizer.Learn(fm, trainSet, validSet); err != nil {
		return Score{}, errors.Trace(err)
	}
	e.Model = fm
	return e.Evaluate(validSet), nil
}

// Predict applies the fitted model to x.
func (e *Estimator) Predict(x *dataset.SparseInstance) float64 {
	return e.Model.Predict(x)
}

// Evaluate scores the fitted model: regression metrics for the linear link,
// classification metrics for the logistic link.
func (e *Estimator) Evaluate(testSet *dataset.Dataset) Score {
	if testSet == nil {
		return Score{}
	}
	if e.link == Logistic {
		return EvaluateClassification(e.Model, testSet)
	}
	return EvaluateRegression(e.Model, testSet)
}

// Objective maps a score to a value to maximize: -RMSE for regression, AUC for
// classification. Diverged scores map to the lowest finite value.
func (e *Estimator) Objective(score Score) float64 {
	value := score.AUC
	if e.link == Linear {
		value = -score.RMSE
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return -math.MaxFloat64
	}
	return value
}
