// Copyright 2020 gorse Project Authors
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
	"sort"

	"github.com/gorse-io/gorse-fm/dataset"
	"go.uber.org/zap"
)

type Score struct {
	RMSE      float64
	MAE       float64
	Precision float64
	Recall    float64
	Accuracy  float64
	AUC       float64
}

func (score Score) ZapFields() []zap.Field {
	return []zap.Field{
		zap.Float64("RMSE", score.RMSE),
		zap.Float64("MAE", score.MAE),
		zap.Float64("Accuracy", score.Accuracy),
		zap.Float64("Precision", score.Precision),
		zap.Float64("Recall", score.Recall),
		zap.Float64("AUC", score.AUC),
	}
}

// EvaluateRegression evaluates factorization machines in regression task.
func EvaluateRegression(fm *FactorizationMachine, testSet *dataset.Dataset) Score {
	if testSet.Count() == 0 {
		return Score{}
	}
	var sumSquare, sumAbs float64
	for x := range testSet.All() {
		diff := x.Target() - fm.Predict(x)
		sumSquare += diff * diff
		sumAbs += math.Abs(diff)
	}
	n := float64(testSet.Count())
	return Score{
		RMSE: math.Sqrt(sumSquare / n),
		MAE:  sumAbs / n,
	}
}

// EvaluateClassification evaluates factorization machines in classification task.
// Targets greater than zero are positive; raw scores greater than zero
// (probability above one half) are predicted positive.
func EvaluateClassification(fm *FactorizationMachine, testSet *dataset.Dataset) Score {
	if testSet.Count() == 0 {
		return Score{}
	}
	var posPrediction, negPrediction []float64
	for x := range testSet.All() {
		if x.Target() > 0 {
			posPrediction = append(posPrediction, fm.RawScore(x))
		} else {
			negPrediction = append(negPrediction, fm.RawScore(x))
		}
	}
	return Score{
		Precision: Precision(posPrediction, negPrediction),
		Recall:    Recall(posPrediction, negPrediction),
		Accuracy:  Accuracy(posPrediction, negPrediction),
		AUC:       AUC(posPrediction, negPrediction),
	}
}

func Precision(posPrediction, negPrediction []float64) float64 {
	var tp, fp float64
	for _, p := range posPrediction {
		if p > 0 { // true positive
			tp++
		}
	}
	for _, p := range negPrediction {
		if p > 0 { // false positive
			fp++
		}
	}
	if tp+fp == 0 {
		return 0
	}
	return tp / (tp + fp)
}

func Recall(posPrediction, _ []float64) float64 {
	var tp, fn float64
	for _, p := range posPrediction {
		if p > 0 { // true positive
			tp++
		} else { // false negative
			fn++
		}
	}
	if tp+fn == 0 {
		return 0
	}
	return tp / (tp + fn)
}

func Accuracy(posPrediction, negPrediction []float64) float64 {
	var correct float64
	for _, p := range posPrediction {
		if p > 0 {
			correct++
		}
	}
	for _, p := range negPrediction {
		if p <= 0 {
			correct++
		}
	}
	if len(posPrediction)+len(negPrediction) == 0 {
		return 0
	}
	return correct / float64(len(posPrediction)+len(negPrediction))
}

// AUC sorts both slices in place.
func AUC(posPrediction, negPrediction []float64) float64 {
	sort.Float64s(posPrediction)
	sort.Float64s(negPrediction)
	var sum float64
	var nPos int
	for pPos := range posPrediction {
		// find the negative sample with the greatest prediction less than current positive sample
		for nPos < len(negPrediction) && negPrediction[nPos] < posPrediction[pPos] {
			nPos++
		}
		// add the number of negative samples have less prediction than current positive sample
		sum += float64(nPos)
	}
	if len(posPrediction)*len(negPrediction) == 0 {
		return 0
	}
	return sum / float64(len(posPrediction)*len(negPrediction))
}
