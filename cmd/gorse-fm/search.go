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

package main

import (
	"fmt"
	"os"

	"github.com/gorse-io/gorse-fm/base/log"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/gorse-io/gorse-fm/model/fm"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var searchCommand = &cobra.Command{
	Use:   "search <file>",
	Short: "Search hyper-parameters of a factorization machine.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		trainSet, testSet, err := loadDataset(&conf.Data, args[0])
		if err != nil {
			return err
		}
		if _, err = newEstimator(conf); err != nil {
			return err
		}

		var (
			best  *fm.Estimator
			score fm.Score
		)
		if grid, _ := cmd.Flags().GetBool("grid"); grid {
			estimator, _ := newEstimator(conf)
			result, err := fm.GridSearchCV(estimator, trainSet, testSet, estimator.GetParamsGrid())
			if err != nil {
				return errors.Trace(err)
			}
			best, score = result.BestModel, result.BestScore
		} else {
			search := fm.NewModelSearch(func() *fm.Estimator {
				estimator, _ := newEstimator(conf)
				return estimator
			}, trainSet, testSet)
			if err = search.Optimize(conf.Search.NTrials, conf.Model.RandomState); err != nil {
				return errors.Trace(err)
			}
			best, score = search.Result()
		}
		if best == nil {
			return errors.NotFoundf("model")
		}
		log.Logger().Info("best model", append(score.ZapFields(), zap.String("params", best.GetParams().ToString()))...)
		return printParams(best.GetParams(), best.Objective(score))
	},
}

func init() {
	searchCommand.Flags().Bool("grid", false, "exhaustive grid search instead of TPE")
}

func printParams(params model.Params, objective float64) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Hyper-parameter", "Value")
	for _, name := range []model.ParamName{
		model.NFactors, model.InitStdDev, model.Lr, model.Momentum, model.NEpochs,
		model.Reg, model.RegBias, model.RegWeight, model.RegFactor,
	} {
		if value, exist := params[name]; exist {
			if err := table.Append([]string{string(name), fmt.Sprint(value)}); err != nil {
				return errors.Trace(err)
			}
		}
	}
	if err := table.Append([]string{"objective", formatFloat(objective)}); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(table.Render())
}
