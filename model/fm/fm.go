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
	"strings"

	"github.com/gorse-io/gorse-fm/base"
	"github.com/gorse-io/gorse-fm/dataset"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
)

// Link is the transform applied to the raw score of a factorization machine.
type Link int

const (
	// Linear predicts the raw score.
	Linear Link = iota
	// Logistic squashes the raw score into (0, 1).
	Logistic
)

func (link Link) String() string {
	switch link {
	case Linear:
		return "linear"
	case Logistic:
		return "logistic"
	default:
		return "unknown"
	}
}

// ParseLink parses "linear" or "logistic".
func ParseLink(name string) (Link, error) {
	switch strings.ToLower(name) {
	case "linear":
		return Linear, nil
	case "logistic":
		return Logistic, nil
	default:
		return Linear, errors.NotValidf("link %q", name)
	}
}

// FactorizationMachine is the implementation of factorization machine. The prediction is given by
//
//	\hat y(x) = w_0 + \sum^n_{i=1} w_i x_i + \sum^n_{i=1} \sum^n_{j=i+1} <v_i, v_j>x_i x_j
//
// The pairwise term is evaluated as
//
//	1/2 \sum^k_{f=1} ((\sum_i v_{i,f} x_i)^2 - \sum_i v_{i,f}^2 x_i^2)
//
// over the non-zero entries of x only. Parameters are exported so that an
// optimizer can update them in place; their shapes never change.
type FactorizationMachine struct {
	Link    Link
	Bias    float64     // w_0
	Weights []float64   // w_i
	Factors [][]float64 // v_i

	nFactors int
}

// New creates a factorization machine from explicit parameters. The slices
// are owned by the returned model. Every row of factors must have the same
// length and there must be one row per weight.
func New(link Link, bias float64, weights []float64, factors [][]float64) (*FactorizationMachine, error) {
	if len(weights) != len(factors) {
		return nil, base.ShapeMismatchf("%d weights with %d factor rows", len(weights), len(factors))
	}
	nFactors := 0
	if len(factors) > 0 {
		nFactors = len(factors[0])
	}
	for i, row := range factors {
		if len(row) != nFactors {
			return nil, base.ShapeMismatchf("factor row %d has %d columns, expect %d", i, len(row), nFactors)
		}
	}
	return &FactorizationMachine{
		Link:     link,
		Bias:     bias,
		Weights:  weights,
		Factors:  factors,
		nFactors: nFactors,
	}, nil
}

// NewRandom creates a factorization machine with zero bias and weights and
// factors drawn from N(0, stdDev^2).
func NewRandom(link Link, numFeatures, nFactors int, rng base.RandomGenerator, stdDev float64) *FactorizationMachine {
	if numFeatures < 0 || nFactors < 0 {
		panic(errors.NotValidf("shape (%d, %d)", numFeatures, nFactors))
	}
	return &FactorizationMachine{
		Link:     link,
		Weights:  make([]float64, numFeatures),
		Factors:  rng.NormalMatrix64(numFeatures, nFactors, 0, stdDev),
		nFactors: nFactors,
	}
}

// NewFromParams creates a random factorization machine from hyper-parameters:
// NFactors (default 8), InitStdDev (default 0.01) and RandomState.
func NewFromParams(link Link, numFeatures int, params model.Params) *FactorizationMachine {
	nFactors := params.GetInt(model.NFactors, 8)
	initStdDev := params.GetFloat64(model.InitStdDev, 0.01)
	rng := base.NewRandomGenerator(params.GetInt64(model.RandomState, 0))
	return NewRandom(link, numFeatures, nFactors, rng, initStdDev)
}

// NumFeatures returns the number of features.
func (fm *FactorizationMachine) NumFeatures() int {
	return len(fm.Weights)
}

// NumFactors returns the number of latent factors per feature.
func (fm *FactorizationMachine) NumFactors() int {
	return fm.nFactors
}

// Clone returns a deep copy.
func (fm *FactorizationMachine) Clone() *FactorizationMachine {
	factors := make([][]float64, len(fm.Factors))
	for i := range fm.Factors {
		factors[i] = append([]float64(nil), fm.Factors[i]...)
	}
	return &FactorizationMachine{
		Link:     fm.Link,
		Bias:     fm.Bias,
		Weights:  append([]float64(nil), fm.Weights...),
		Factors:  factors,
		nFactors: fm.nFactors,
	}
}

// RawScore computes the score before the link function. Every feature index
// of x must be less than NumFeatures.
func (fm *FactorizationMachine) RawScore(x *dataset.SparseInstance) float64 {
	return fm.rawScore(x, make([]float64, fm.nFactors))
}

// Predict applies the link function to the raw score.
func (fm *FactorizationMachine) Predict(x *dataset.SparseInstance) float64 {
	return fm.link(fm.RawScore(x))
}

// predict is Predict that also leaves \sum_i v_{i,f} x_i in sum.
func (fm *FactorizationMachine) predict(x *dataset.SparseInstance, sum []float64) float64 {
	return fm.link(fm.rawScore(x, sum))
}

func (fm *FactorizationMachine) link(score float64) float64 {
	if fm.Link == Logistic {
		return Sigmoid(score)
	}
	return score
}

func (fm *FactorizationMachine) rawScore(x *dataset.SparseInstance, sum []float64) float64 {
	clear(sum)
	score := fm.Bias
	squareSum := 0.0
	x.ForEach(func(index int, value float64) {
		factor := fm.Factors[index]
		score += fm.Weights[index] * value
		floats.AddScaled(sum, value, factor)
		squareSum += floats.Dot(factor, factor) * value * value
	})
	return score + 0.5*(floats.Dot(sum, sum)-squareSum)
}

var (
	minProbability = math.SmallestNonzeroFloat64
	maxProbability = math.Nextafter(1, 0)
)

// Sigmoid computes 1 / (1 + e^{-z}) without overflow. Results are clamped to
// the open interval (0, 1). NaN is passed through.
func Sigmoid(z float64) float64 {
	var p float64
	if z >= 0 {
		p = 1 / (1 + math.Exp(-z))
	} else {
		e := math.Exp(z)
		p = e / (1 + e)
	}
	return min(max(p, minProbability), maxProbability)
}
