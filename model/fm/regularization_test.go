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
	"testing"

	"github.com/gorse-io/gorse-fm/base"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewRegularizationFromParams(t *testing.T) {
	reg := NewRegularizationFromParams(3, nil)
	assert.Equal(t, NewRegularization(3, 0.01, 0.01, 0.01), reg)

	reg = NewRegularizationFromParams(2, model.Params{
		model.Reg:       0.1,
		model.RegFactor: 0.5,
	})
	assert.Equal(t, 0.1, reg.Bias)
	assert.Equal(t, []float64{0.1, 0.1}, reg.Weights)
	assert.Equal(t, []float64{0.5, 0.5}, reg.Factors)
}

func TestRegularization_Check(t *testing.T) {
	assert.NoError(t, NewRegularization(2, 0, 0, 0).check(2))
	err := NewRegularization(2, 0, 0, 0).check(3)
	assert.True(t, errors.Is(err, base.ErrShapeMismatch))
	err = Regularization{Weights: make([]float64, 3), Factors: make([]float64, 2)}.check(3)
	assert.True(t, errors.Is(err, base.ErrShapeMismatch))
}
