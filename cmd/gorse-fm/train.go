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
	"github.com/gorse-io/gorse-fm/config"
	"github.com/gorse-io/gorse-fm/model/fm"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var trainCommand = &cobra.Command{
	Use:   "train <file>",
	Short: "Train a factorization machine and evaluate it on held-out data.",
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
		estimator, err := newEstimator(conf)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(conf.Optimizer.NEpochs,
			progressbar.OptionSetDescription("training"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
		estimator.SetVerbose(conf.Optimizer.Verbose).SetObserver(func(r fm.EpochReport) {
			if r.Epoch > 0 {
				_ = bar.Add(1)
			}
		})
		testScore, err := estimator.Fit(trainSet, testSet)
		_ = bar.Finish()
		if err != nil {
			return errors.Trace(err)
		}
		trainScore := estimator.Evaluate(trainSet)
		log.Logger().Info("complete training", testScore.ZapFields()...)

		if err = printScores(estimator.Link(), trainScore, testScore); err != nil {
			return err
		}
		if hideParams, _ := cmd.Flags().GetBool("hide-params"); !hideParams {
			return printModel(estimator.Model)
		}
		return nil
	},
}

func init() {
	trainCommand.Flags().Bool("hide-params", false, "do not print learned bias and weights")
}

func newEstimator(conf *config.Config) (*fm.Estimator, error) {
	link, err := fm.ParseLink(conf.Model.Link)
	if err != nil {
		return nil, errors.Trace(err)
	}
	loss, err := fm.ParseLoss(conf.Optimizer.Loss)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if (link == fm.Logistic) != (loss == fm.LogLoss{}) {
		return nil, errors.NotValidf("%s loss with %s link", conf.Optimizer.Loss, link)
	}
	return fm.NewEstimator(link, loss, conf.ModelParams()), nil
}

func printScores(link fm.Link, trainScore, testScore fm.Score) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Train", "Test")
	rows := [][]string{
		{"RMSE", formatFloat(trainScore.RMSE), formatFloat(testScore.RMSE)},
		{"MAE", formatFloat(trainScore.MAE), formatFloat(testScore.MAE)},
	}
	if link == fm.Logistic {
		rows = [][]string{
			{"Precision", formatFloat(trainScore.Precision), formatFloat(testScore.Precision)},
			{"Recall", formatFloat(trainScore.Recall), formatFloat(testScore.Recall)},
			{"Accuracy", formatFloat(trainScore.Accuracy), formatFloat(testScore.Accuracy)},
			{"AUC", formatFloat(trainScore.AUC), formatFloat(testScore.AUC)},
		}
	}
	if err := table.Bulk(rows); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(table.Render())
}

func printModel(model *fm.FactorizationMachine) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Parameter", "Value")
	if err := table.Append([]string{"bias", formatFloat(model.Bias)}); err != nil {
		return errors.Trace(err)
	}
	for i, weight := range model.Weights {
		if err := table.Append([]string{fmt.Sprintf("w[%d]", i), formatFloat(weight)}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.6f", value)
}
