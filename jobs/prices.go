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

	"github.com/jeremycod/bcco/scheduler"
)

// refreshPrices upserts the latest prices for every distinct held
// ticker. Per-ticker failures are counted and survived; the benchmark is
// refreshed first since nearly every downstream computation needs it.
func refreshPrices(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	tickers, err := jc.Store.DistinctTickers(ctx)
	if err != nil {
		return result, err
	}
	tickers = append([]string{defaultBenchmark}, tickers...)

	delay := jc.Cfg.InterPortfolioDelay["prices"]
	for i, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		if err := jc.Market.EnsureFreshPrices(ctx, ticker); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("price refresh failed for ticker")
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
