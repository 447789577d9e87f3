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

package regime_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/forecast/regime"
	"github.com/jeremycod/bcco/store"
)

// switchingSymbols builds a sequence that alternates between two symbol
// neighbourhoods in long blocks, the cleanest structure Baum-Welch can
// latch onto.
func switchingSymbols(n int) []int {
	out := make([]int, n)
	for i := range out {
		block := (i / 100) % 2
		if block == 0 {
			out[i] = 9 + i%2 // mid-return, low-vol neighbourhood
		} else {
			out[i] = 3 + (i%2)*4 // low-return, high-vol neighbourhood
		}
	}
	return out
}

func TestBaumWelchRowsAreStochastic(t *testing.T) {
	model, err := regime.BaumWelch(switchingSymbols(600), regime.NumStates, regime.NumSymbols, 50, 1e-4)
	require.NoError(t, err)
	require.True(t, model.Trained)

	for i, row := range model.Transition {
		sum := 0.0
		for _, p := range row {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "transition row %d", i)
	}
	for i, row := range model.Emission {
		sum := 0.0
		for _, p := range row {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "emission row %d", i)
	}
}

func TestBaumWelchAccuracyInUnitRange(t *testing.T) {
	model, err := regime.BaumWelch(switchingSymbols(600), regime.NumStates, regime.NumSymbols, 50, 1e-4)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, model.Accuracy, 0.0)
	assert.LessOrEqual(t, model.Accuracy, 1.0)
}

func TestBaumWelchRejectsBadInput(t *testing.T) {
	_, err := regime.BaumWelch([]int{1}, regime.NumStates, regime.NumSymbols, 10, 1e-4)
	assert.Error(t, err)

	_, err = regime.BaumWelch([]int{1, 2, 99}, regime.NumStates, regime.NumSymbols, 10, 1e-4)
	assert.Error(t, err)
}

func TestDiscretizeCoversAlphabet(t *testing.T) {
	seen := map[int]bool{}
	rets := []float64{-3, -1, 0, 1, 3}
	vols := []float64{5, 15, 25, 40}
	for _, r := range rets {
		for _, v := range vols {
			s := regime.Discretize(r, v)
			assert.GreaterOrEqual(t, s, 0)
			assert.Less(t, s, regime.NumSymbols)
			seen[s] = true
		}
	}
	assert.Len(t, seen, regime.NumSymbols, "each bucket pair maps to a distinct symbol")
}

func TestScoreRefusesUntrainedModel(t *testing.T) {
	_, err := regime.Score(store.HMMModel{Trained: false, NumStates: regime.NumStates}, []int{1, 2, 3})
	assert.Error(t, err)
}

func TestScoreReturnsPosteriorState(t *testing.T) {
	symbols := switchingSymbols(600)
	model, err := regime.BaumWelch(symbols, regime.NumStates, regime.NumSymbols, 50, 1e-4)
	require.NoError(t, err)

	persisted := store.HMMModel{
		ModelName:        "test",
		NumStates:        regime.NumStates,
		StateNames:       []string{"Bull", "Bear", "HighVol", "Normal"},
		TransitionMatrix: model.Transition,
		EmissionMatrix:   model.Emission,
		Trained:          true,
	}
	scored, err := regime.Score(persisted, symbols[len(symbols)-30:])
	require.NoError(t, err)
	assert.Contains(t, persisted.StateNames, scored.State)
	assert.Greater(t, scored.Confidence, 0.0)
	assert.LessOrEqual(t, scored.Confidence, 1.0+1e-9)
}

func TestObservationsDropWarmupWindow(t *testing.T) {
	prices := make([]store.PricePoint, 60)
	for i := range prices {
		prices[i] = store.PricePoint{
			Ticker: "SPY",
			Close:  100 * math.Pow(1.001, float64(i)),
		}
	}
	obs := regime.Observations(prices)
	// 59 returns minus the 21-day realised-vol warmup.
	assert.Len(t, obs, 38)
	for _, o := range obs {
		assert.GreaterOrEqual(t, o.Symbol, 0)
		assert.Less(t, o.Symbol, regime.NumSymbols)
	}
}
