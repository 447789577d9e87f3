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
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/cachestate"
	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/forecast"
	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/scheduler"
	"github.com/jeremycod/bcco/store"
	"github.com/jeremycod/bcco/timeseries"
)

// populateRollingBetaCache precomputes the rolling beta series for the
// most widely held tickers against the benchmark, under the cache
// protocol keyed (ticker, benchmark, days).
func populateRollingBetaCache(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	tickers, err := jc.Store.TopTickersByPositionCount(ctx, topTickerCount)
	if err != nil {
		return result, err
	}
	if err := jc.Market.EnsureFreshPrices(ctx, defaultBenchmark); err != nil {
		return result, err
	}

	delay := jc.Cfg.InterPortfolioDelay["risk"]
	for i, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		keys := []store.KeyCol{
			{Col: "ticker", Val: ticker},
			{Col: "benchmark", Val: defaultBenchmark},
			{Col: "days", Val: defaultWindowDays},
		}

		needs, err := jc.Cache.CheckNeedsRefresh(ctx, cachestate.KindRollingBeta, keys)
		if err != nil || !needs {
			if err != nil {
				result.ItemsFailed++
			}
			continue
		}
		claimed, err := jc.Cache.MarkCalculating(ctx, cachestate.KindRollingBeta, keys)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if !claimed {
			continue
		}

		series, err := computeRollingBeta(ctx, jc, ticker)
		if err != nil {
			if markErr := jc.Cache.MarkError(ctx, cachestate.KindRollingBeta, keys, err); markErr != nil {
				log.Error().Err(markErr).Str("ticker", ticker).Msg("could not mark rolling beta cache error")
			}
			result.ItemsFailed++
		} else {
			if err := jc.Cache.StoreFresh(ctx, cachestate.KindRollingBeta, keys, series); err != nil {
				result.ItemsFailed++
			} else {
				result.ItemsProcessed++
			}
		}

		if i < len(tickers)-1 && !pace(ctx, delay) {
			break
		}
	}
	return result, nil
}

func computeRollingBeta(ctx context.Context, jc scheduler.JobContext, ticker string) (*forecast.RollingBetaSeries, error) {
	if err := jc.Market.EnsureFreshPrices(ctx, ticker); err != nil {
		return nil, err
	}
	asOf := time.Now()
	assetPoints, err := jc.Store.TrailingPrices(ctx, ticker, defaultWindowDays+rollingBetaWindow+1, asOf)
	if err != nil {
		return nil, err
	}
	benchPoints, err := jc.Store.TrailingPrices(ctx, defaultBenchmark, defaultWindowDays+rollingBetaWindow+1, asOf)
	if err != nil {
		return nil, err
	}
	if len(assetPoints) < rollingBetaWindow+2 || len(benchPoints) < rollingBetaWindow+2 {
		return nil, errs.New(errs.NotFound, "insufficient history for rolling beta").WithField("ticker", ticker)
	}

	n := len(assetPoints)
	if len(benchPoints) < n {
		n = len(benchPoints)
	}
	assetPoints = assetPoints[len(assetPoints)-n:]
	benchPoints = benchPoints[len(benchPoints)-n:]

	assetPrices := make([]float64, n)
	benchPrices := make([]float64, n)
	dates := make([]time.Time, 0, n-1)
	for i := 0; i < n; i++ {
		assetPrices[i] = assetPoints[i].Close
		benchPrices[i] = benchPoints[i].Close
		if i > 0 {
			dates = append(dates, assetPoints[i].Date)
		}
	}

	points := forecast.RollingBeta(dates, timeseries.Returns(assetPrices), timeseries.Returns(benchPrices), rollingBetaWindow)
	if len(points) == 0 {
		return nil, errs.New(errs.Validation, "rolling beta produced no points").WithField("ticker", ticker)
	}

	return &forecast.RollingBetaSeries{
		Ticker:      ticker,
		Benchmark:   defaultBenchmark,
		WindowDays:  rollingBetaWindow,
		Points:      points,
		CurrentBeta: points[len(points)-1].Beta,
		BetaVol:     forecast.BetaVolatility(points),
		GeneratedAt: time.Now(),
	}, nil
}

// populateDownsideRiskCache precomputes loss-side portfolio metrics
// under the cache protocol keyed (portfolio_id, days).
func populateDownsideRiskCache(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
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
		keys := []store.KeyCol{
			{Col: "portfolio_id", Val: id},
			{Col: "days", Val: defaultWindowDays},
		}

		needs, err := jc.Cache.CheckNeedsRefresh(ctx, cachestate.KindDownsideRisk, keys)
		if err != nil || !needs {
			if err != nil {
				result.ItemsFailed++
			}
			continue
		}
		claimed, err := jc.Cache.MarkCalculating(ctx, cachestate.KindDownsideRisk, keys)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if !claimed {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, jc.Cfg.PortfolioTimeout)
		downside, err := jc.Risk.ComputePortfolioDownside(pctx, id, defaultWindowDays)
		cancel()

		if err != nil {
			if markErr := jc.Cache.MarkError(ctx, cachestate.KindDownsideRisk, keys, err); markErr != nil {
				log.Error().Err(markErr).Str("portfolio_id", id).Msg("could not mark downside cache error")
			}
			result.ItemsFailed++
		} else {
			if err := jc.Cache.StoreFresh(ctx, cachestate.KindDownsideRisk, keys, downside); err != nil {
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

// populateOptimizationCache derives per-portfolio recommendations from
// the freshest risk assessment available, under the cache protocol keyed
// by portfolio alone.
func populateOptimizationCache(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
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
		keys := []store.KeyCol{{Col: "portfolio_id", Val: id}}

		needs, err := jc.Cache.CheckNeedsRefresh(ctx, cachestate.KindOptimization, keys)
		if err != nil || !needs {
			if err != nil {
				result.ItemsFailed++
			}
			continue
		}
		claimed, err := jc.Cache.MarkCalculating(ctx, cachestate.KindOptimization, keys)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if !claimed {
			continue
		}

		recommendations, err := recommendationsFor(ctx, jc, id)
		if err != nil {
			if markErr := jc.Cache.MarkError(ctx, cachestate.KindOptimization, keys, err); markErr != nil {
				log.Error().Err(markErr).Str("portfolio_id", id).Msg("could not mark optimization cache error")
			}
			result.ItemsFailed++
		} else {
			if err := jc.Cache.StoreFresh(ctx, cachestate.KindOptimization, keys, recommendations); err != nil {
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

func recommendationsFor(ctx context.Context, jc scheduler.JobContext, portfolioID string) (*riskengine.OptimizationRecommendations, error) {
	var risk riskengine.PortfolioRiskWithViolations
	cached, err := jc.Cache.GetFresh(ctx, cachestate.KindPortfolioRisk, riskKeys(portfolioID), &risk)
	if err != nil {
		cached = false
	}
	if !cached {
		pctx, cancel := context.WithTimeout(ctx, jc.Cfg.PortfolioTimeout)
		computed, err := jc.Risk.ComputePortfolioRisk(pctx, portfolioID, defaultWindowDays, defaultBenchmark, riskengine.DefaultThresholds())
		cancel()
		if err != nil {
			return nil, err
		}
		risk = *computed
	}
	return riskengine.RecommendFromRisk(&risk), nil
}
