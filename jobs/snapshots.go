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

package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/cachestate"
	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/scheduler"
)

// createDailyRiskSnapshots persists the day's portfolio risk per
// portfolio. Fresh cached risk is reused; portfolios without a usable
// cache entry are computed directly (and not written back to the cache,
// which stays owned by its own job).
func createDailyRiskSnapshots(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	ids, err := jc.Store.PortfolioIDs(ctx)
	if err != nil {
		return result, err
	}

	today := time.Now().Truncate(24 * time.Hour)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		var risk riskengine.PortfolioRiskWithViolations
		cached, err := jc.Cache.GetFresh(ctx, cachestate.KindPortfolioRisk, riskKeys(id), &risk)
		if err != nil {
			cached = false
		}
		if !cached {
			pctx, cancel := context.WithTimeout(ctx, jc.Cfg.PortfolioTimeout)
			computed, err := jc.Risk.ComputePortfolioRisk(pctx, id, defaultWindowDays, defaultBenchmark, riskengine.DefaultThresholds())
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("portfolio_id", id).Msg("snapshot computation failed")
				result.ItemsFailed++
				continue
			}
			risk = *computed
		}

		data, err := json.Marshal(risk)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if err := jc.Store.SaveRiskSnapshot(ctx, id, today, data); err != nil {
			log.Warn().Err(err).Str("portfolio_id", id).Msg("snapshot write failed")
			result.ItemsFailed++
			continue
		}
		result.ItemsProcessed++
	}
	return result, nil
}

// archiveSnapshots enforces the one-year retention on risk snapshots and
// job runs, and prunes aged filings-derived rows alongside them.
func archiveSnapshots(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult
	cutoff := time.Now().Add(-snapshotRetention)

	snapshots, err := jc.Store.ArchiveRiskSnapshotsOlderThan(ctx, cutoff)
	if err != nil {
		return result, err
	}
	runs, err := jc.Store.ArchiveJobRunsOlderThan(ctx, cutoff)
	if err != nil {
		result.ItemsFailed++
	}
	events, err := jc.Store.PruneMaterialEvents(ctx, cutoff)
	if err != nil {
		result.ItemsFailed++
	}
	insiders, err := jc.Store.PruneInsiderTransactions(ctx, cutoff)
	if err != nil {
		result.ItemsFailed++
	}

	log.Info().Int64("snapshots", snapshots).Int64("job_runs", runs).
		Int64("material_events", events).Int64("insider_transactions", insiders).
		Msg("archived aged rows")
	result.ItemsProcessed = int(snapshots + runs + events + insiders)
	return result, nil
}
