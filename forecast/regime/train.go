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

package regime

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/store"
)

const (
	// DefaultMarket is the benchmark whose history trains the model.
	DefaultMarket = "SPY"

	// DefaultLookbackYears of price history feed one training run.
	DefaultLookbackYears = 10

	// DefaultModelName keys the persisted model.
	DefaultModelName = "market_regime_hmm"

	defaultMaxIterations = 100
	convergenceTol       = 1e-4

	// minTrainingObservations below which the trainer refuses to fit and
	// persists an explicitly untrained placeholder instead.
	minTrainingObservations = 252

	tradingDaysPerYear = 252
)

// StateBull etc. are the canonical regime labels, assigned to learned
// states by their emission characteristics after training.
const (
	StateBull    = "Bull"
	StateBear    = "Bear"
	StateHighVol = "HighVol"
	StateNormal  = "Normal"
)

// Trainer fits the market-regime HMM from stored price history and
// persists the result.
type Trainer struct {
	store         *store.Store
	market        string
	lookbackYears int
	maxIterations int
}

func NewTrainer(s *store.Store, market string, lookbackYears int) *Trainer {
	if market == "" {
		market = DefaultMarket
	}
	if lookbackYears <= 0 {
		lookbackYears = DefaultLookbackYears
	}
	return &Trainer{store: s, market: market, lookbackYears: lookbackYears, maxIterations: defaultMaxIterations}
}

// Train loads the lookback window of prices, discretises it, runs
// Baum-Welch, labels the learned states, and persists the model. When
// the history is too short the persisted model carries Trained=false and
// no transition or emission matrices; it is never silently populated
// with defaults.
func (t *Trainer) Train(ctx context.Context) (store.HMMModel, error) {
	asOf := time.Now()
	prices, err := t.store.TrailingPrices(ctx, t.market, t.lookbackYears*tradingDaysPerYear, asOf)
	if err != nil {
		return store.HMMModel{}, err
	}

	observations := Observations(prices)
	if len(observations) < minTrainingObservations {
		log.Warn().Str("market", t.market).Int("observations", len(observations)).
			Msg("insufficient history to train regime model; persisting untrained placeholder")
		untrained := store.HMMModel{
			ModelName:  DefaultModelName,
			Market:     t.market,
			NumStates:  NumStates,
			StateNames: []string{StateBull, StateBear, StateHighVol, StateNormal},
			Trained:    false,
		}
		if err := t.store.SaveHMMModel(ctx, untrained); err != nil {
			return store.HMMModel{}, err
		}
		return untrained, errs.New(errs.Validation, "insufficient observations to train regime model").
			WithField("observations", len(observations))
	}

	symbols := make([]int, len(observations))
	for i, o := range observations {
		symbols[i] = o.Symbol
	}

	model, err := BaumWelch(symbols, NumStates, NumSymbols, t.maxIterations, convergenceTol)
	if err != nil {
		return store.HMMModel{}, err
	}
	model.StateNames = labelStates(model.Emission)

	persisted := store.HMMModel{
		ModelName:        DefaultModelName,
		Market:           t.market,
		NumStates:        NumStates,
		StateNames:       model.StateNames,
		TransitionMatrix: model.Transition,
		EmissionMatrix:   model.Emission,
		TrainingStart:    prices[0].Date,
		TrainingEnd:      prices[len(prices)-1].Date,
		Accuracy:         model.Accuracy,
		Trained:          true,
	}
	if err := t.store.SaveHMMModel(ctx, persisted); err != nil {
		return store.HMMModel{}, err
	}

	log.Info().Str("market", t.market).Int("observations", len(observations)).
		Float64("accuracy", model.Accuracy).Msg("trained market regime model")
	return persisted, nil
}

// labelStates assigns the canonical regime names by each learned state's
// expected return and volatility buckets: the highest expected-return
// state is Bull, the lowest is Bear, the highest expected-volatility
// remaining state is HighVol, and the last is Normal.
func labelStates(emission [][]float64) []string {
	type profile struct {
		state   int
		meanRet float64
		meanVol float64
	}
	profiles := make([]profile, len(emission))
	for i, row := range emission {
		p := profile{state: i}
		for symbol, prob := range row {
			retBucket := symbol / NumVolBuckets
			volBucket := symbol % NumVolBuckets
			p.meanRet += prob * float64(retBucket)
			p.meanVol += prob * float64(volBucket)
		}
		profiles[i] = p
	}

	names := make([]string, len(emission))
	byRet := append([]profile(nil), profiles...)
	sort.Slice(byRet, func(i, j int) bool { return byRet[i].meanRet > byRet[j].meanRet })
	names[byRet[0].state] = StateBull
	names[byRet[len(byRet)-1].state] = StateBear

	var remaining []profile
	for _, p := range profiles {
		if names[p.state] == "" {
			remaining = append(remaining, p)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].meanVol > remaining[j].meanVol })
	if len(remaining) > 0 {
		names[remaining[0].state] = StateHighVol
	}
	for _, p := range remaining[1:] {
		names[p.state] = StateNormal
	}
	return names
}
