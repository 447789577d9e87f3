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
	"github.com/jeremycod/bcco/scheduler"
)

// fetchNews clears the news cache for the most widely held tickers so
// the request tier re-fetches fresh articles on next read.
func fetchNews(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	tickers, err := jc.Store.TopTickersByPositionCount(ctx, topTickerCount)
	if err != nil {
		return result, err
	}

	delay := jc.Cfg.InterPortfolioDelay["news"]
	for i, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		if _, err := jc.Store.ClearNewsCache(ctx, []string{ticker}); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("news cache clear failed")
			result.ItemsFailed++
		} else {
			result.ItemsProcessed++
		}
		if i < len(tickers)-1 && !pace(ctx, delay) {
			break
		}
	}
	return result, nil
}

// clearTickerCache invalidates a symbol-keyed cache kind for the top
// held tickers; shared by the forecast and sentiment clear jobs.
func clearTickerCache(ctx context.Context, jc scheduler.JobContext, kind cachestate.Kind) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	tickers, err := jc.Store.TopTickersByPositionCount(ctx, topTickerCount)
	if err != nil {
		return result, err
	}

	delay := jc.Cfg.InterPortfolioDelay["news"]
	for i, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		if err := jc.Cache.InvalidateTicker(ctx, kind, ticker); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Str("kind", string(kind)).Msg("cache invalidation failed")
			result.ItemsFailed++
		} else {
			result.ItemsProcessed++
		}
		if i < len(tickers)-1 && !pace(ctx, delay) {
			break
		}
	}
	return result, nil
}

// generateForecasts stales the beta-forecast cache for the top held
// tickers; on-demand reads recompute from there.
func generateForecasts(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	return clearTickerCache(ctx, jc, cachestate.KindBetaForecast)
}

// analyzeSECFilings stales the enhanced-sentiment cache for the top held
// tickers.
func analyzeSECFilings(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	return clearTickerCache(ctx, jc, cachestate.KindEnhancedSent)
}

// warmCaches is a reserved slot in the schedule; it logs and exits.
func warmCaches(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	log.Debug().Str("job_name", jc.JobName).Msg("warm_caches is a placeholder; nothing to do")
	return scheduler.JobResult{}, nil
}
