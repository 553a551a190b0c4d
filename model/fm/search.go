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
	"fmt"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/gorse-fm/base/log"
	"github.com/gorse-io/gorse-fm/dataset"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// ParamsSearchResult contains the return of grid search.
type ParamsSearchResult struct {
	BestScore  Score
	BestModel  *Estimator
	BestParams model.Params
	BestIndex  int
	Scores     []Score
	Params     []model.Params
}

// GridSearchCV tries every combination in paramGrid on top of the current
// parameters of estimator and keeps the best by Estimator.Objective.
func GridSearchCV(estimator *Estimator, trainSet, validSet *dataset.Dataset, paramGrid model.ParamsGrid) (ParamsSearchResult, error) {
	paramNames := paramGrid.Names()
	total := paramGrid.NumCombinations()
	baseParams := estimator.GetParams().Copy()
	results := ParamsSearchResult{
		BestIndex: -1,
		Scores:    make([]Score, 0, total),
		Params:    make([]model.Params, 0, total),
	}
	var dfs func(deep int, params model.Params) error
	dfs = func(deep int, params model.Params) error {
		if deep == len(paramNames) {
			log.Logger().Info(fmt.Sprintf("grid search %v/%v", len(results.Scores)+1, total),
				zap.Any("params", params))
			estimator.Clear()
			estimator.SetParams(overwriteParams(baseParams, params))
			score, err := estimator.Fit(trainSet, validSet)
			if err != nil {
				return errors.Trace(err)
			}
			results.Scores = append(results.Scores, score)
			results.Params = append(results.Params, params.Copy())
			if results.BestIndex < 0 || estimator.Objective(score) > estimator.Objective(results.BestScore) {
				results.BestScore = score
				results.BestParams = params.Copy()
				results.BestIndex = len(results.Params) - 1
				results.BestModel = estimator.Clone()
			}
			return nil
		}
		paramName := paramNames[deep]
		for _, val := range paramGrid[paramName] {
			params[paramName] = val
			if err := dfs(deep+1, params); err != nil {
				return err
			}
		}
		return nil
	}
	if err := dfs(0, model.Params{}); err != nil {
		return results, err
	}
	return results, nil
}

// overwriteParams applies searched params on top of base. A searched Reg
// drops the group coefficients RegBias, RegWeight and RegFactor of base, which
// would otherwise take precedence over it.
func overwriteParams(base, params model.Params) model.Params {
	merged := base.Overwrite(params)
	if _, exist := params[model.Reg]; exist {
		for _, name := range []model.ParamName{model.RegBias, model.RegWeight, model.RegFactor} {
			if _, searched := params[name]; !searched {
				delete(merged, name)
			}
		}
	}
	return merged
}

// ModelSearch searches hyper-parameters with the tree-structured Parzen
// estimator.
type ModelSearch struct {
	creator   func() *Estimator
	trainSet  *dataset.Dataset
	validSet  *dataset.Dataset
	bestModel *Estimator
	bestScore Score
	bestValue float64
}

// NewModelSearch creates a search. creator returns a fresh estimator whose
// parameters are the base of every trial.
func NewModelSearch(creator func() *Estimator, trainSet, validSet *dataset.Dataset) *ModelSearch {
	return &ModelSearch{
		creator:  creator,
		trainSet: trainSet,
		validSet: validSet,
	}
}

// Objective fits an estimator with suggested parameters and returns
// Estimator.Objective of its score.
func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	m := ms.creator()
	m.SetParams(overwriteParams(m.GetParams(), m.SuggestParams(trial)))
	score, err := m.Fit(ms.trainSet, ms.validSet)
	if err != nil {
		return 0, errors.Trace(err)
	}
	value := m.Objective(score)
	if ms.bestModel == nil || value > ms.bestValue {
		ms.bestModel = m
		ms.bestScore = score
		ms.bestValue = value
	}
	return value, nil
}

// Optimize runs nTrials trials.
func (ms *ModelSearch) Optimize(nTrials int, seed int64) error {
	study, err := goptuna.CreateStudy("gorse-fm",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(seed))))
	if err != nil {
		return errors.Trace(err)
	}
	startTime := time.Now()
	if err = study.Optimize(ms.Objective, nTrials); err != nil {
		return errors.Trace(err)
	}
	if ms.bestModel != nil {
		log.Logger().Info("complete model search",
			append(ms.bestScore.ZapFields(),
				zap.Any("params", ms.bestModel.GetParams()),
				zap.Duration("search_time", time.Since(startTime)))...)
	}
	return nil
}

// Result returns the best estimator and its score, nil before any trial.
func (ms *ModelSearch) Result() (*Estimator, Score) {
	return ms.bestModel, ms.bestScore
}
