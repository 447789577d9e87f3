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

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/cachestate"
	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/scheduler"
	"github.com/jeremycod/bcco/store"
)

func riskKeys(portfolioID string) []store.KeyCol {
	return []store.KeyCol{
		{Col: "portfolio_id", Val: portfolioID},
		{Col: "days", Val: defaultWindowDays},
		{Col: "benchmark", Val: defaultBenchmark},
	}
}

// thresholdsFor loads a portfolio's configured limits, falling back to
// the documented defaults.
func thresholdsFor(ctx context.Context, jc scheduler.JobContext, portfolioID string) (riskengine.Thresholds, error) {
	row, found, err := jc.Store.ThresholdSettings(ctx, portfolioID)
	if err != nil {
		return riskengine.Thresholds{}, err
	}
	if !found {
		return riskengine.DefaultThresholds(), nil
	}
	return riskengine.Thresholds{
		MaxVolatility: row.MaxVolatility,
		MaxDrawdown:   row.MaxDrawdown,
		MaxBeta:       row.MaxBeta,
		MaxRiskScore:  row.MaxRiskScore,
		MaxVaR:        row.MaxVaR,
	}, nil
}

// calculatePortfolioRisks runs the full cache protocol per portfolio:
// freshness check, mark calculating, compute under the per-portfolio
// timeout, store or mark error. A portfolio marked calculating always
// reaches one of the two terminal writes before the loop moves on.
func calculatePortfolioRisks(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	ids, err := jc.Store.PortfolioIDs(ctx)
	if err != nil {
		return result, err
	}

	delay := jc.Cfg.InterPortfolioDelay["risk"]
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		keys := riskKeys(id)

		needs, err := jc.Cache.CheckNeedsRefresh(ctx, cachestate.KindPortfolioRisk, keys)
		if err != nil {
			log.Warn().Err(err).Str("portfolio_id", id).Msg("risk freshness check failed")
			result.ItemsFailed++
			continue
		}
		if !needs {
			continue
		}
		claimed, err := jc.Cache.MarkCalculating(ctx, cachestate.KindPortfolioRisk, keys)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if !claimed {
			// Another scheduler instance won the race for this key.
			continue
		}

		thresholds, err := thresholdsFor(ctx, jc, id)
		if err != nil {
			thresholds = riskengine.DefaultThresholds()
		}

		pctx, cancel := context.WithTimeout(ctx, jc.Cfg.PortfolioTimeout)
		risk, err := jc.Risk.ComputePortfolioRisk(pctx, id, defaultWindowDays, defaultBenchmark, thresholds)
		cancel()

		if err != nil {
			if markErr := jc.Cache.MarkError(ctx, cachestate.KindPortfolioRisk, keys, err); markErr != nil {
				log.Error().Err(markErr).Str("portfolio_id", id).Msg("could not mark risk cache error")
			}
			log.Warn().Err(err).Str("portfolio_id", id).Msg("portfolio risk computation failed")
			result.ItemsFailed++
		} else {
			if err := jc.Cache.StoreFresh(ctx, cachestate.KindPortfolioRisk, keys, risk); err != nil {
				log.Error().Err(err).Str("portfolio_id", id).Msg("could not store risk result")
				result.ItemsFailed++
			} else {
				result.ItemsProcessed++
			}
		}

		if i < len(ids)-1 && !pace(ctx, delay) {
			break
		}
	}
	return result, nil
}

// checkThresholds evaluates threshold violations per portfolio from the
// cached risk data. Read-only: it logs what it finds and writes nothing.
func checkThresholds(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	ids, err := jc.Store.PortfolioIDs(ctx)
	if err != nil {
		return result, err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		row, found, err := jc.Store.ThresholdSettings(ctx, id)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if !found {
			continue
		}
		thresholds := riskengine.Thresholds{
			MaxVolatility: row.MaxVolatility,
			MaxDrawdown:   row.MaxDrawdown,
			MaxBeta:       row.MaxBeta,
			MaxRiskScore:  row.MaxRiskScore,
			MaxVaR:        row.MaxVaR,
		}

		var risk riskengine.PortfolioRiskWithViolations
		cached, err := jc.Cache.GetFresh(ctx, cachestate.KindPortfolioRisk, riskKeys(id), &risk)
		if err != nil || !cached {
			continue
		}

		violations := riskengine.DetectViolations(risk.Positions, thresholds)
		for _, v := range violations {
			log.Warn().Str("portfolio_id", id).Str("ticker", v.Ticker).Str("metric", v.Metric).
				Float64("value", v.Value).Float64("threshold", v.Threshold).
				Str("severity", string(v.Severity)).Msg("risk threshold violated")
		}
		result.ItemsProcessed++
	}
	return result, nil
}
