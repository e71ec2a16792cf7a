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

// Package main is the advisor, which recommends and launches machine
// learning experiments for the datasets users ask it to work on.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"automl.dev/advisor/internal/app/advisor"
	"automl.dev/advisor/internal/appmain"
	"automl.dev/advisor/internal/campaign"
	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/internal/consts"
	"automl.dev/advisor/internal/recommender"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// flagBindings maps command line flags onto configuration keys.
var flagBindings = map[string]string{
	"rec":            consts.AdvisorRecommender,
	"n-recs":         consts.TerminationTarget,
	"term-condition": consts.TerminationCondition,
	"sleep":          consts.AdvisorTickInterval,
	"user":           consts.AdvisorUser,
	"knowledgebase":  consts.AdvisorKnowledgebase,
}

func main() {
	cmd := newRootCommand(func(getCfg func() (config.View, error)) {
		appmain.RunApplication("advisor", getCfg, advisor.BindService)
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(run func(getCfg func() (config.View, error))) *cobra.Command {
	var configPath string
	var maxTime float64

	cmd := &cobra.Command{
		Use:   "advisor",
		Short: "Recommends and launches experiments for datasets in the lab",
		Long: `The advisor watches the lab for datasets whose AI is requested, asks a
recommender for promising (algorithm, parameters) pairs and submits them as
experiments until the termination condition is met or the AI is turned off.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			getCfg := func() (config.View, error) {
				cfg, err := config.ReadFile(configPath, cmd.Flags(), flagBindings)
				if err != nil {
					return nil, err
				}
				return applyMaxTime(cfg, cmd.Flags().Changed("max-time"), maxTime)
			}
			if _, err := getCfg(); err != nil {
				return err
			}
			run(getCfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "configuration file (default: advisor_config.yaml in . or config/)")
	f.String("rec", "random", "recommender, one of "+strings.Join(recommender.Names(), ", "))
	f.Int("n-recs", 1, "recommendations per dataset for the n_recs condition; below 1 recommends until the AI is turned off")
	f.String("term-condition", "n_recs", "termination condition: n_recs, time or continuous")
	f.Float64Var(&maxTime, "max-time", 0, "seconds a dataset is worked on for the time condition")
	f.Duration("sleep", 4*time.Second, "pause between two passes of the loop")
	f.String("user", "testuser", "lab user experiments are submitted for")
	f.StringP("knowledgebase", "k", "", "JSON file of prior results to bootstrap the recommender with")
	return cmd
}

// applyMaxTime makes --max-time the target of elapsed time campaigns.
func applyMaxTime(cfg config.View, changed bool, maxTime float64) (config.View, error) {
	if !changed {
		return cfg, nil
	}
	cond, err := campaign.ParseCondition(cfg.GetString(consts.TerminationCondition))
	if err != nil {
		return nil, err
	}
	if cond != campaign.ElapsedTime {
		return cfg, nil
	}
	m, ok := cfg.(config.Mutable)
	if !ok {
		return nil, errors.New("configuration is read-only")
	}
	m.Set(consts.TerminationTarget, maxTime)
	return cfg, nil
}
