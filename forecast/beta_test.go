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

package forecast_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/forecast"
)

func betaHistory(n int, fn func(i int) float64) []forecast.BetaPoint {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	out := make([]forecast.BetaPoint, n)
	for i := range out {
		out[i] = forecast.BetaPoint{Date: start.AddDate(0, 0, i), Beta: fn(i)}
	}
	return out
}

func TestForecastBetaMeanReversionDecaysTowardOne(t *testing.T) {
	history := betaHistory(60, func(int) float64 { return 1.8 })
	points, err := forecast.ForecastBeta(history, 1.8, 0.1, 90, forecast.MethodMeanReversion)
	require.NoError(t, err)
	require.Len(t, points, 90)

	// Each horizon moves closer to 1.0 than the last.
	prev := 1.8
	for _, p := range points {
		assert.Less(t, p.Predicted, prev)
		assert.Greater(t, p.Predicted, 1.0)
		prev = p.Predicted
	}
	// Half-life check: at h=139 alpha=0.5, so at h=90 we are partway.
	expected := math.Exp(-0.005*90)*1.8 + (1-math.Exp(-0.005*90))*1.0
	assert.InDelta(t, expected, points[89].Predicted, 1e-9)
}

func TestForecastBetaAllMethodsStayClampedAndContained(t *testing.T) {
	history := betaHistory(60, func(i int) float64 { return 2.5 + 0.05*float64(i%7) })
	for _, method := range []forecast.Method{
		forecast.MethodMeanReversion, forecast.MethodExpSmoothing,
		forecast.MethodLinear, forecast.MethodEnsemble,
	} {
		points, err := forecast.ForecastBeta(history, 2.7, 0.4, 90, method)
		require.NoError(t, err, "method %s", method)
		for _, p := range points {
			assert.GreaterOrEqual(t, p.Predicted, 0.0)
			assert.LessOrEqual(t, p.Predicted, 3.0)
			assert.LessOrEqual(t, p.Lower, p.Predicted)
			assert.GreaterOrEqual(t, p.Upper, p.Predicted)
		}
	}
}

func TestForecastBetaRejectsOutOfRangeHorizon(t *testing.T) {
	history := betaHistory(60, func(int) float64 { return 1.0 })
	_, err := forecast.ForecastBeta(history, 1.0, 0.1, 91, forecast.MethodEnsemble)
	assert.Error(t, err)
	_, err = forecast.ForecastBeta(history, 1.0, 0.1, 0, forecast.MethodEnsemble)
	assert.Error(t, err)
}

func TestDetectBetaRegimeChangesFindsStep(t *testing.T) {
	// Stable around 1.0 for 60 days, then a hard jump to 1.8.
	history := betaHistory(120, func(i int) float64 {
		base := 1.0
		if i >= 60 {
			base = 1.8
		}
		return base + 0.02*math.Sin(float64(i))
	})
	changes := forecast.DetectBetaRegimeChanges(history)
	require.NotEmpty(t, changes)

	found := false
	for _, c := range changes {
		if c.Significance > 2 && c.MeanAfter > c.MeanBefore {
			found = true
		}
	}
	assert.True(t, found, "expected a significant upward shift near the step")
}

func TestDetectBetaRegimeChangesQuietSeriesIsClean(t *testing.T) {
	history := betaHistory(120, func(i int) float64 { return 1.0 + 0.01*math.Sin(float64(i)) })
	assert.Empty(t, forecast.DetectBetaRegimeChanges(history))
}
