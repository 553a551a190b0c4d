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
	"github.com/gorse-io/gorse-fm/base"
	"github.com/gorse-io/gorse-fm/model"
)

// Regularization holds L2 coefficients: one for the bias and one per feature
// for weights and factors. A factor coefficient applies to all latent
// dimensions of its feature.
type Regularization struct {
	Bias    float64
	Weights []float64
	Factors []float64
}

// NewRegularization creates a regularization with the same coefficient for
// every feature.
func NewRegularization(numFeatures int, bias, weight, factor float64) Regularization {
	reg := Regularization{
		Bias:    bias,
		Weights: make([]float64, numFeatures),
		Factors: make([]float64, numFeatures),
	}
	for i := 0; i < numFeatures; i++ {
		reg.Weights[i] = weight
		reg.Factors[i] = factor
	}
	return reg
}

// NewRegularizationFromParams reads RegBias, RegWeight and RegFactor, each
// falling back to Reg (default 0.01).
func NewRegularizationFromParams(numFeatures int, params model.Params) Regularization {
	reg := params.GetFloat64(model.Reg, 0.01)
	return NewRegularization(numFeatures,
		params.GetFloat64(model.RegBias, reg),
		params.GetFloat64(model.RegWeight, reg),
		params.GetFloat64(model.RegFactor, reg))
}

func (reg Regularization) check(numFeatures int) error {
	if len(reg.Weights) != numFeatures {
		return base.ShapeMismatchf("%d weight regularizers for %d features", len(reg.Weights), numFeatures)
	}
	if len(reg.Factors) != numFeatures {
		return base.ShapeMismatchf("%d factor regularizers for %d features", len(reg.Factors), numFeatures)
	}
	return nil
}
