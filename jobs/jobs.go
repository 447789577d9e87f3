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

// Package jobs is the concrete job library: every scheduled job the
// daemon registers, wiring the risk and forecast engines over the
// portfolio set into the cache protocol. Job names are operator-facing
// and stable.
package jobs

import (
	"context"
	"time"

	"github.com/jeremycod/bcco/scheduler"
)

// Shared compute parameters. The window and benchmark form part of each
// cache record's key, so changing them starts a fresh cache generation
// rather than overwriting the old one.
const (
	defaultWindowDays = 365
	defaultBenchmark  = "SPY"

	// topTickerCount bounds the symbol-keyed cache clears to the most
	// widely held names.
	topTickerCount = 20

	// rollingBetaWindow is the per-window observation count for the
	// precomputed rolling beta series.
	rollingBetaWindow = 60

	// snapshotRetention is how long risk snapshots and job runs are kept.
	snapshotRetention = 365 * 24 * time.Hour
)

// Catalogue returns every job with its production and test-mode
// schedules. Schedules are 6-field cron (seconds first); test mode runs
// everything on a dense cadence for staging.
func Catalogue() []scheduler.Job {
	return []scheduler.Job{
		{Name: "refresh_prices", Schedule: "0 0 2 * * *", TestSchedule: "0 */5 * * * *", Handler: refreshPrices},
		{Name: "fetch_news", Schedule: "0 30 2 * * *", TestSchedule: "0 */7 * * * *", Handler: fetchNews},
		{Name: "generate_forecasts", Schedule: "0 0 4 * * *", TestSchedule: "0 */10 * * * *", Handler: generateForecasts},
		{Name: "analyze_sec_filings", Schedule: "0 30 4 * * *", TestSchedule: "0 */10 * * * *", Handler: analyzeSECFilings},
		{Name: "check_thresholds", Schedule: "0 0 * * * *", TestSchedule: "0 */5 * * * *", Handler: checkThresholds},
		{Name: "warm_caches", Schedule: "0 30 * * * *", TestSchedule: "0 */15 * * * *", Handler: warmCaches},
		{Name: "calculate_portfolio_risks", Schedule: "0 15 * * * *", TestSchedule: "0 */3 * * * *", Handler: calculatePortfolioRisks},
		{Name: "calculate_portfolio_correlations", Schedule: "0 45 */2 * * *", TestSchedule: "0 */6 * * * *", Handler: calculatePortfolioCorrelations},
		{Name: "create_daily_risk_snapshots", Schedule: "0 0 17 * * *", TestSchedule: "0 */20 * * * *", Handler: createDailyRiskSnapshots},
		{Name: "update_market_regime", Schedule: "0 5 17 * * *", TestSchedule: "0 */20 * * * *", Handler: updateMarketRegime},
		{Name: "train_hmm_model", Schedule: "0 0 0 1 * *", TestSchedule: "0 0 */2 * * *", Handler: trainHMMModel},
		{Name: "populate_optimization_cache", Schedule: "0 0 */6 * * *", TestSchedule: "0 */10 * * * *", Handler: populateOptimizationCache},
		{Name: "populate_rolling_beta_cache", Schedule: "0 30 */6 * * *", TestSchedule: "0 */10 * * * *", Handler: populateRollingBetaCache},
		{Name: "populate_downside_risk_cache", Schedule: "0 45 */6 * * *", TestSchedule: "0 */10 * * * *", Handler: populateDownsideRiskCache},
		{Name: "cleanup_cache", Schedule: "0 0 3 * * 0", TestSchedule: "0 0 * * * *", Handler: cleanupCache},
		{Name: "archive_snapshots", Schedule: "0 30 3 * * 0", TestSchedule: "0 30 * * * *", Handler: archiveSnapshots},
	}
}

// RegisterAll registers the full catalogue on a runner.
func RegisterAll(r *scheduler.Runner) error {
	for _, job := range Catalogue() {
		if err := r.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// pace sleeps the configured inter-item delay, returning early (false)
// on cancellation so jobs stop cleanly between items.
func pace(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}
