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

	"github.com/juju/errors"
)

// Loss is a pointwise error. Gradient is the derivative of Value with respect
// to the raw score, so a loss defined on squashed predictions must apply the
// chain rule through the link itself.
type Loss interface {
	Value(prediction, target float64) float64
	Gradient(prediction, target float64) float64
}

// SquaredError is (target - prediction)^2 on raw scores.
type SquaredError struct{}

func (SquaredError) Value(prediction, target float64) float64 {
	diff := target - prediction
	return diff * diff
}

func (SquaredError) Gradient(prediction, target float64) float64 {
	return -2 * (target - prediction)
}

const logLossEpsilon = 1e-15

// LogLoss is the binary cross entropy of a logistic prediction against a
// target in {0, 1}. Its gradient with respect to the raw score is
// prediction - target.
type LogLoss struct{}

func (LogLoss) Value(prediction, target float64) float64 {
	p := min(max(prediction, logLossEpsilon), 1-logLossEpsilon)
	return -(target*math.Log(p) + (1-target)*math.Log(1-p))
}

func (LogLoss) Gradient(prediction, target float64) float64 {
	return prediction - target
}

type lossFunc struct {
	value    func(prediction, target float64) float64
	gradient func(prediction, target float64) float64
}

// NewLoss creates a loss from a pair of functions.
func NewLoss(value, gradient func(prediction, target float64) float64) Loss {
	return lossFunc{value: value, gradient: gradient}
}

func (l lossFunc) Value(prediction, target float64) float64 {
	return l.value(prediction, target)
}

func (l lossFunc) Gradient(prediction, target float64) float64 {
	return l.gradient(prediction, target)
}

// ParseLoss parses "squared" or "log".
func ParseLoss(name string) (Loss, error) {
	switch strings.ToLower(name) {
	case "squared":
		return SquaredError{}, nil
	case "log":
		return LogLoss{}, nil
	default:
		return nil, errors.NotValidf("loss %q", name)
	}
}
