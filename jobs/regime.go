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

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/forecast/regime"
	"github.com/jeremycod/bcco/scheduler"
)

// regimeScoringDays is how much recent history feeds the daily regime
// score: enough for the realised-vol warmup plus a month of symbols.
const regimeScoringDays = 90

// updateMarketRegime scores the current observation sequence against the
// trained HMM and persists the resulting regime. An untrained model is a
// job failure, never a silent default.
func updateMarketRegime(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	model, found, err := jc.Store.LoadHMMModel(ctx, regime.DefaultModelName)
	if err != nil {
		return result, err
	}
	if !found || !model.Trained {
		return result, errs.New(errs.Validation, "no trained regime model available").
			WithField("model_name", regime.DefaultModelName)
	}

	prices, err := jc.Store.TrailingPrices(ctx, model.Market, regimeScoringDays, time.Now())
	if err != nil {
		return result, err
	}
	observations := regime.Observations(prices)
	if len(observations) == 0 {
		return result, errs.New(errs.Validation, "insufficient recent history to score regime").
			WithField("market", model.Market)
	}

	symbols := make([]int, len(observations))
	for i, o := range observations {
		symbols[i] = o.Symbol
	}
	scored, err := regime.Score(model, symbols)
	if err != nil {
		return result, err
	}

	latest := observations[len(observations)-1].Date
	if err := jc.Store.SaveMarketRegime(ctx, model.Market, scored.State, scored.Confidence, latest); err != nil {
		return result, err
	}

	log.Info().Str("market", model.Market).Str("regime", scored.State).
		Float64("confidence", scored.Confidence).Msg("updated market regime")
	result.ItemsProcessed = 1
	return result, nil
}

// trainHMMModel retrains the benchmark regime model on the full lookback
// window. Runs monthly; the trainer persists an explicitly untrained
// placeholder when history is too thin.
func trainHMMModel(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	if err := jc.Market.EnsureFreshPrices(ctx, regime.DefaultMarket); err != nil {
		log.Warn().Err(err).Msg("could not refresh benchmark prices before training; using stored history")
	}

	trainer := regime.NewTrainer(jc.Store, regime.DefaultMarket, regime.DefaultLookbackYears)
	if _, err := trainer.Train(ctx); err != nil {
		return result, err
	}
	result.ItemsProcessed = 1
	return result, nil
}
