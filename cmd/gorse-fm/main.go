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
	"github.com/gorse-io/gorse-fm/cmd/version"
	"github.com/gorse-io/gorse-fm/config"
	"github.com/gorse-io/gorse-fm/dataset"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "gorse-fm",
	Short: "Factorization machines trained by stochastic gradient descent.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Logger().Sync()
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print the version of gorse-fm.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(trainCommand, searchCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load config %q", configPath)
	}
	return conf, nil
}

// loadDataset reads the data file and splits it into training and test sets.
func loadDataset(conf *config.DataConfig, path string) (*dataset.Dataset, *dataset.Dataset, error) {
	var (
		data *dataset.Dataset
		err  error
	)
	switch conf.Format {
	case "libfm":
		data, err = dataset.LoadLibFMFile(path)
	case "csv":
		data, err = dataset.LoadCSVFile(path, conf.Separator, conf.Header, conf.TargetColumn)
	default:
		err = errors.NotValidf("data format %q", conf.Format)
	}
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if conf.Normalize {
		data = data.Normalize()
	}
	trainSet, testSet := data.Split(conf.TestRatio, conf.RandomState)
	log.Logger().Info("load dataset",
		zap.String("path", path),
		zap.Int("n_features", data.NumFeatures()),
		zap.Int("n_train", trainSet.Count()),
		zap.Int("n_test", testSet.Count()))
	return trainSet, testSet, nil
}
