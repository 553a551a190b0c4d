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

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/gorse-fm/model"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration for training.
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Data      DataConfig      `mapstructure:"data"`
	Search    SearchConfig    `mapstructure:"search"`
}

type ModelConfig struct {
	Link        string  `mapstructure:"link" validate:"oneof=linear logistic"`
	NFactors    int     `mapstructure:"n_factors" validate:"gte=0"`
	InitStdDev  float64 `mapstructure:"init_std" validate:"gte=0"`
	RandomState int64   `mapstructure:"random_state"`
}

type OptimizerConfig struct {
	Loss      string  `mapstructure:"loss" validate:"oneof=squared log"`
	Lr        float64 `mapstructure:"lr" validate:"gt=0"`
	Momentum  float64 `mapstructure:"momentum" validate:"gte=0,lt=1"`
	NEpochs   int     `mapstructure:"n_epochs" validate:"gte=0"`
	RegBias   float64 `mapstructure:"reg_bias" validate:"gte=0"`
	RegWeight float64 `mapstructure:"reg_weight" validate:"gte=0"`
	RegFactor float64 `mapstructure:"reg_factor" validate:"gte=0"`
	Verbose   int     `mapstructure:"verbose" validate:"gte=0"`
}

type DataConfig struct {
	Format       string  `mapstructure:"format" validate:"oneof=libfm csv"`
	Separator    string  `mapstructure:"separator" validate:"required_if=Format csv"`
	Header       bool    `mapstructure:"header"`
	TargetColumn int     `mapstructure:"target_column"`
	Normalize    bool    `mapstructure:"normalize"`
	TestRatio    float64 `mapstructure:"test_ratio" validate:"gt=0,lt=1"`
	RandomState  int64   `mapstructure:"random_state"`
}

type SearchConfig struct {
	NTrials int `mapstructure:"n_trials" validate:"gt=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Link:       "linear",
			NFactors:   8,
			InitStdDev: 0.01,
		},
		Optimizer: OptimizerConfig{
			Loss:      "squared",
			Lr:        0.01,
			Momentum:  0,
			NEpochs:   20,
			RegBias:   0.01,
			RegWeight: 0.01,
			RegFactor: 0.01,
			Verbose:   1,
		},
		Data: DataConfig{
			Format:       "libfm",
			Separator:    ",",
			TargetColumn: -1,
			TestRatio:    0.2,
		},
		Search: SearchConfig{
			NTrials: 10,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [model]
	v.SetDefault("model.link", defaultConfig.Model.Link)
	v.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	v.SetDefault("model.init_std", defaultConfig.Model.InitStdDev)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	// [optimizer]
	v.SetDefault("optimizer.loss", defaultConfig.Optimizer.Loss)
	v.SetDefault("optimizer.lr", defaultConfig.Optimizer.Lr)
	v.SetDefault("optimizer.momentum", defaultConfig.Optimizer.Momentum)
	v.SetDefault("optimizer.n_epochs", defaultConfig.Optimizer.NEpochs)
	v.SetDefault("optimizer.reg_bias", defaultConfig.Optimizer.RegBias)
	v.SetDefault("optimizer.reg_weight", defaultConfig.Optimizer.RegWeight)
	v.SetDefault("optimizer.reg_factor", defaultConfig.Optimizer.RegFactor)
	v.SetDefault("optimizer.verbose", defaultConfig.Optimizer.Verbose)
	// [data]
	v.SetDefault("data.format", defaultConfig.Data.Format)
	v.SetDefault("data.separator", defaultConfig.Data.Separator)
	v.SetDefault("data.header", defaultConfig.Data.Header)
	v.SetDefault("data.target_column", defaultConfig.Data.TargetColumn)
	v.SetDefault("data.normalize", defaultConfig.Data.Normalize)
	v.SetDefault("data.test_ratio", defaultConfig.Data.TestRatio)
	v.SetDefault("data.random_state", defaultConfig.Data.RandomState)
	// [search]
	v.SetDefault("search.n_trials", defaultConfig.Search.NTrials)
}

// LoadConfig reads a TOML file. Environment variables GORSE_FM_<SECTION>_<KEY>
// override the file. An empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix("GORSE_FM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// linkLosses pairs every link with the loss whose gradient is taken with
// respect to the raw score through that link.
var linkLosses = map[string]string{
	"linear":   "squared",
	"logistic": "log",
}

func validateLinkLoss(sl validator.StructLevel) {
	config := sl.Current().Interface().(Config)
	if loss, exist := linkLosses[config.Model.Link]; exist && loss != config.Optimizer.Loss {
		sl.ReportError(config.Optimizer.Loss, "Optimizer.Loss", "Loss", "link_loss", config.Model.Link)
	}
}

// Validate checks value ranges of every section and that the loss matches
// the link: squared error for linear, log loss for logistic.
func (config *Config) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(validateLinkLoss, Config{})
	if err := validate.Struct(config); err != nil {
		return errors.NotValidf("config: %v", err)
	}
	return nil
}

// ModelParams converts [model] and [optimizer] into hyper-parameters. Equal
// regularization coefficients collapse into Reg so that searched values of
// Reg apply to all of them.
func (config *Config) ModelParams() model.Params {
	params := model.Params{
		model.NFactors:    config.Model.NFactors,
		model.InitStdDev:  config.Model.InitStdDev,
		model.RandomState: config.Model.RandomState,
		model.Lr:          config.Optimizer.Lr,
		model.Momentum:    config.Optimizer.Momentum,
		model.NEpochs:     config.Optimizer.NEpochs,
	}
	if config.Optimizer.RegBias == config.Optimizer.RegWeight && config.Optimizer.RegWeight == config.Optimizer.RegFactor {
		params[model.Reg] = config.Optimizer.RegBias
	} else {
		params[model.RegBias] = config.Optimizer.RegBias
		params[model.RegWeight] = config.Optimizer.RegWeight
		params[model.RegFactor] = config.Optimizer.RegFactor
	}
	return params
}

// Settings flattens the configuration into dotted keys, e.g. "optimizer.lr".
func (config *Config) Settings() (map[string]any, error) {
	settings := make(map[string]any)
	for section, value := range map[string]any{
		"model":     config.Model,
		"optimizer": config.Optimizer,
		"data":      config.Data,
		"search":    config.Search,
	} {
		var values map[string]any
		if err := mapstructure.Decode(value, &values); err != nil {
			return nil, errors.Trace(err)
		}
		for key, v := range values {
			settings[section+"."+key] = v
		}
	}
	return settings, nil
}
