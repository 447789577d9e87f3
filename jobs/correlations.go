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
	"github.com/jeremycod/bcco/store"
)

func correlationKeys(portfolioID string) []store.KeyCol {
	return []store.KeyCol{
		{Col: "portfolio_id", Val: portfolioID},
		{Col: "days", Val: defaultWindowDays},
	}
}

// calculatePortfolioCorrelations runs the cache protocol per portfolio
// for the correlation matrix, paced at the slower correlations delay.
func calculatePortfolioCorrelations(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	ids, err := jc.Store.PortfolioIDs(ctx)
	if err != nil {
		return result, err
	}

	delay := jc.Cfg.InterPortfolioDelay["correlations"]
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		keys := correlationKeys(id)

		needs, err := jc.Cache.CheckNeedsRefresh(ctx, cachestate.KindCorrelations, keys)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if !needs {
			continue
		}
		claimed, err := jc.Cache.MarkCalculating(ctx, cachestate.KindCorrelations, keys)
		if err != nil {
			result.ItemsFailed++
			continue
		}
		if !claimed {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, jc.Cfg.PortfolioTimeout)
		matrix, err := jc.Risk.ComputeCorrelationMatrix(pctx, id, defaultWindowDays, jc.Cfg)
		cancel()

		if err != nil {
			if markErr := jc.Cache.MarkError(ctx, cachestate.KindCorrelations, keys, err); markErr != nil {
				log.Error().Err(markErr).Str("portfolio_id", id).Msg("could not mark correlations cache error")
			}
			log.Warn().Err(err).Str("portfolio_id", id).Msg("correlation matrix computation failed")
			result.ItemsFailed++
		} else {
			if err := jc.Cache.StoreFresh(ctx, cachestate.KindCorrelations, keys, matrix); err != nil {
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
