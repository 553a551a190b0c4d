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

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestSquaredError(t *testing.T) {
	loss := SquaredError{}
	assert.Equal(t, 4.0, loss.Value(3, 1))
	assert.Equal(t, 4.0, loss.Gradient(3, 1))
	assert.Equal(t, -4.0, loss.Gradient(1, 3))
	// numerical derivative
	const h = 1e-6
	for _, p := range []float64{-2, 0, 0.5, 3} {
		numerical := (loss.Value(p+h, 1) - loss.Value(p-h, 1)) / (2 * h)
		assert.InDelta(t, numerical, loss.Gradient(p, 1), 1e-6)
	}
}

func TestLogLoss(t *testing.T) {
	loss := LogLoss{}
	assert.InDelta(t, math.Log(2), loss.Value(0.5, 1), 1e-12)
	assert.InDelta(t, math.Log(2), loss.Value(0.5, 0), 1e-12)
	// clamped probabilities stay finite
	assert.False(t, math.IsInf(loss.Value(0, 1), 0))
	assert.False(t, math.IsInf(loss.Value(1, 0), 0))
	// gradient is taken with respect to the raw score
	const h = 1e-6
	for _, z := range []float64{-3, -0.5, 0, 0.5, 3} {
		for _, target := range []float64{0, 1} {
			numerical := (loss.Value(Sigmoid(z+h), target) - loss.Value(Sigmoid(z-h), target)) / (2 * h)
			assert.InDelta(t, numerical, loss.Gradient(Sigmoid(z), target), 1e-6)
		}
	}
}

func TestNewLoss(t *testing.T) {
	loss := NewLoss(
		func(prediction, target float64) float64 { return math.Abs(prediction - target) },
		func(prediction, target float64) float64 { return math.Copysign(1, prediction-target) })
	assert.Equal(t, 2.0, loss.Value(1, 3))
	assert.Equal(t, -1.0, loss.Gradient(1, 3))
}

func TestParseLoss(t *testing.T) {
	loss, err := ParseLoss("squared")
	assert.NoError(t, err)
	assert.Equal(t, SquaredError{}, loss)
	loss, err = ParseLoss("LOG")
	assert.NoError(t, err)
	assert.Equal(t, LogLoss{}, loss)
	_, err = ParseLoss("hinge")
	assert.True(t, errors.Is(err, errors.NotValid))
}
