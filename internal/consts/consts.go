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

// Package consts names the configuration keys of the advisor.
package consts

const (
	// Logging settings
	LoggingFormat    = "logging.format"
	LoggingLevel     = "logging.level"
	LoggingSource    = "logging.source"
	LoggingEnableRpc = "logging.rpc"

	// Advisor settings
	AdvisorUser          = "advisor.user"
	AdvisorTickInterval  = "advisor.tickInterval"
	AdvisorParallelism   = "advisor.parallelism"
	AdvisorBatchSize     = "advisor.batchSize"
	AdvisorRecommender   = "advisor.recommender"
	AdvisorRandomSeed    = "advisor.randomSeed"
	AdvisorKnowledgebase = "advisor.knowledgebase"
	TerminationCondition = "advisor.termination.condition"
	TerminationTarget    = "advisor.termination.target"

	// Service settings
	AdvisorHTTPPort = "api.advisor.httpport"

	// Lab settings
	LabHostName               = "lab.hostname"
	LabHTTPPort               = "lab.httpport"
	LabAPIKey                 = "lab.apiKey"
	LabTimeout                = "lab.timeout"
	LabRetry                  = "lab.retry"
	LabTrustedCertificatePath = "lab.tls.trustedCertificatePath"

	HostNameSuffix = ".hostname"
	HTTPPortSuffix = ".httpport"

	// Redis settings
	RedisConnMaxIdle            = "redis.pool.maxIdle"
	RedisConnMaxActive          = "redis.pool.maxActive"
	RedisConnIdleTimeout        = "redis.pool.idleTimeout"
	RedisConnHealthCheckTimeout = "redis.pool.healthCheckTimeout"
	RedisUser                   = "redis.user"
	RedisPassword               = "redis.password"
	RedisHostName               = "redis.hostname"
	RedisPort                   = "redis.port"
	RedisOutcomesMax            = "redis.outcomes.max"
	RedisLeaderLockEnable       = "redis.leaderLock.enable"
	RedisLeaderLockExpiry       = "redis.leaderLock.expiry"
)
