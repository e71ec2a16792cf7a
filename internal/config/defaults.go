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

package config

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaults(cfg *viper.Viper) {
	cfg.SetDefault("logging.level", "info")
	cfg.SetDefault("logging.format", "text")
	cfg.SetDefault("logging.source", false)
	cfg.SetDefault("logging.rpc", false)

	cfg.SetDefault("advisor.user", "testuser")
	cfg.SetDefault("advisor.tickInterval", 4*time.Second)
	cfg.SetDefault("advisor.parallelism", 4)
	cfg.SetDefault("advisor.batchSize", 5)
	cfg.SetDefault("advisor.recommender", "random")
	cfg.SetDefault("advisor.randomSeed", 0)
	cfg.SetDefault("advisor.knowledgebase", "")
	cfg.SetDefault("advisor.termination.condition", "fixedCount")
	cfg.SetDefault("advisor.termination.target", 1)

	cfg.SetDefault("api.advisor.httpport", 51600)

	cfg.SetDefault("lab.hostname", "localhost")
	cfg.SetDefault("lab.httpport", 5080)
	cfg.SetDefault("lab.timeout", 10*time.Second)
	cfg.SetDefault("lab.retry", "[0.25 2] *2 ~0.33 <10")

	cfg.SetDefault("redis.port", 6379)
	cfg.SetDefault("redis.pool.maxIdle", 10)
	cfg.SetDefault("redis.pool.maxActive", 0)
	cfg.SetDefault("redis.pool.idleTimeout", 60*time.Second)
	cfg.SetDefault("redis.pool.healthCheckTimeout", 300*time.Millisecond)
	cfg.SetDefault("redis.outcomes.max", 100)
	cfg.SetDefault("redis.leaderLock.enable", false)
	cfg.SetDefault("redis.leaderLock.expiry", 30*time.Second)

	cfg.SetDefault("telemetry.reportingPeriod", "1m")
	cfg.SetDefault("telemetry.prometheus.enable", false)
	cfg.SetDefault("telemetry.prometheus.endpoint", "/metrics")
	cfg.SetDefault("telemetry.zpages.enable", false)
}
