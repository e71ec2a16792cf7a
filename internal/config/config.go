// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config contains convenience functions for reading and managing viper configs.
package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "config",
	})

	// OpenCensus
	cfgVarCount = stats.Int64("config/vars_total", "Number of config vars read during initialization", "1")
	// CfgVarCountView is the Open Census view for the cfgVarCount measure.
	CfgVarCountView = &view.View{
		Name:        "config/vars_total",
		Measure:     cfgVarCount,
		Description: "The number of config vars read during initialization",
		Aggregation: view.Count(),
	}

	// envMappings keeps the environment variables of the legacy deployment
	// working. Everything else can be set through ADVISOR_<KEY>.
	envMappings = map[string]string{
		"lab.hostname":       "LAB_HOST",
		"lab.httpport":       "LAB_PORT",
		"lab.apiKey":         "APIKEY",
		"advisor.randomSeed": "RANDOM_SEED",
	}
)

// FileName is the base name of the configuration file, without extension.
const FileName = "advisor_config"

// Read reads the advisor configuration into a viper.Viper instance. Values
// are layered, highest priority first: command line flags listed in
// bindings (flag name -> config key), environment variables, the config
// file found in "." or "config", and the built-in defaults.
func Read(flags *pflag.FlagSet, bindings map[string]string) (View, error) {
	return ReadFile("", flags, bindings)
}

// ReadFile is Read with an explicit config file path. An empty path searches
// the default locations.
func ReadFile(path string, flags *pflag.FlagSet, bindings map[string]string) (View, error) {
	cfg := viper.New()
	setDefaults(cfg)

	cfg.SetEnvPrefix("ADVISOR")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	// One important thing to recognize when working with ENV variables is
	// that the value will be read each time it is accessed. Viper does not
	// fix the value when the BindEnv is called.
	for cfgKey, envVar := range envMappings {
		if err := cfg.BindEnv(cfgKey, envVar); err != nil {
			logger.WithFields(logrus.Fields{
				"configkey": cfgKey,
				"envvar":    envVar,
				"error":     err.Error(),
			}).Warn("Unable to bind environment var as a config variable")
		}
	}

	if flags != nil {
		for flagName, cfgKey := range bindings {
			f := flags.Lookup(flagName)
			if f == nil {
				return nil, errors.Errorf("flag %q bound to %q is not defined", flagName, cfgKey)
			}
			if err := cfg.BindPFlag(cfgKey, f); err != nil {
				return nil, errors.Wrapf(err, "cannot bind flag %q", flagName)
			}
		}
	}

	if path != "" {
		cfg.SetConfigFile(path)
	} else {
		cfg.SetConfigType("yaml")
		cfg.AddConfigPath(".")
		cfg.AddConfigPath("config")
		cfg.SetConfigName(FileName)
	}

	err := cfg.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "error reading config file")
		}
		logger.Warn("No config file found, running on defaults, environment and flags")
		return cfg, nil
	}

	// In Kubernetes the config file is a mounted ConfigMap; values read
	// through a Cacher pick the new content up.
	cfg.WatchConfig()
	cfg.OnConfigChange(func(event fsnotify.Event) {
		logger.WithFields(logrus.Fields{
			"filename":  event.Name,
			"operation": event.Op,
		}).Info("Server configuration changed.")
	})
	return cfg, nil
}
