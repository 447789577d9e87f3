// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
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

// Package scheduler is the job runtime: the cron table, per-firing run
// tracking in job_runs, the per-job timeout guard, the manual-trigger
// path, and the fixed trigger-all pipeline. It knows nothing about what
// jobs do; the jobs package registers handlers against it.
package scheduler

import (
	"context"
	"time"

	"github.com/jeremycod/bcco/cachestate"
	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/marketdata"
	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/store"
)

// JobResult is what every handler returns: per-item counts, even when
// every item failed.
type JobResult struct {
	ItemsProcessed int
	ItemsFailed    int
}

// JobContext carries the shared handles a handler needs. All fields are
// safe for concurrent use and cheap to copy; a handler must never stash
// per-run state on it.
type JobContext struct {
	Store  *store.Store
	Cache  *cachestate.Manager
	Market *marketdata.Fetcher
	Risk   *riskengine.Engine
	Cfg    *config.Config

	// JobName and RunID identify the current firing for logging.
	JobName string
	RunID   string
}

// JobHandler is the contract every job implements. The ctx carries the
// per-job timeout and the process shutdown signal; handlers must observe
// it between items and must never exit leaving a cache record in
// calculating.
type JobHandler func(ctx context.Context, jc JobContext) (JobResult, error)

// Job is one catalogue entry: a name, its production and test-mode cron
// schedules (6-field, with seconds), a wall-clock budget for one firing,
// and the handler.
type Job struct {
	Name         string
	Schedule     string
	TestSchedule string
	Timeout      time.Duration
	Handler      JobHandler
}

// ScheduleFor returns the cron expression the daemon should register,
// honouring the test-mode flag.
func (j Job) ScheduleFor(cfg *config.Config) string {
	if cfg.TestMode && j.TestSchedule != "" {
		return j.TestSchedule
	}
	return j.Schedule
}

// DefaultJobTimeout bounds one firing when a job doesn't declare its own.
const DefaultJobTimeout = 30 * time.Minute

// TriggerAllPipeline is the fixed order the trigger-all path runs the
// critical jobs in: prices feed risk, downside and correlations; the
// beta series feed the regime and forecast steps; optimisation and
// snapshots read everything before them.
var TriggerAllPipeline = []string{
	"refresh_prices",
	"calculate_portfolio_risks",
	"populate_downside_risk_cache",
	"calculate_portfolio_correlations",
	"populate_rolling_beta_cache",
	"update_market_regime",
	"generate_forecasts",
	"populate_optimization_cache",
	"create_daily_risk_snapshots",
}
