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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/forecast"
)

// synthGARCH simulates a GARCH(1,1) return path with a deterministic
// pseudo-normal driver so the test is reproducible without a seeded RNG.
func synthGARCH(n int, omega, alpha, beta float64) []float64 {
	returns := make([]float64, n)
	sigma2 := omega / (1 - alpha - beta)
	x := 0.5
	for t := 0; t < n; t++ {
		// Logistic-map chaos, flattened to a near-uniform draw by the
		// map's arcsine CDF and then mapped through the probit-ish
		// transform below, gives a zero-mean innovation sequence.
		x = 3.99 * x * (1 - x)
		u := 2 / math.Pi * math.Asin(math.Sqrt(x))
		z := math.Sqrt2 * erfInv(2*u-1)
		returns[t] = math.Sqrt(sigma2) * z
		sigma2 = omega + alpha*returns[t]*returns[t] + beta*sigma2
	}
	return returns
}

// erfInv is a rational approximation of the inverse error function,
// accurate to ~1e-4, which is plenty for generating test innovations.
func erfInv(y float64) float64 {
	if y <= -1 {
		y = -0.999999
	}
	if y >= 1 {
		y = 0.999999
	}
	a := 0.147
	ln := math.Log(1 - y*y)
	t1 := 2/(math.Pi*a) + ln/2
	return math.Copysign(math.Sqrt(math.Sqrt(t1*t1-ln/a)-t1), y)
}

func TestEstimateGARCHRequiresFullTradingYear(t *testing.T) {
	_, err := forecast.EstimateGARCH(make([]float64, 100))
	assert.Error(t, err)
}

func TestEstimateGARCHRecoversNeighbourhood(t *testing.T) {
	returns := synthGARCH(300, 1e-5, 0.1, 0.85)
	params, err := forecast.EstimateGARCH(returns)
	require.NoError(t, err)

	// The estimator is a coarse grid; the contract is landing in the
	// neighbourhood of the true persistence, not pinpoint recovery.
	assert.InDelta(t, 0.10, params.Alpha, 0.05)
	assert.InDelta(t, 0.85, params.Beta, 0.05)
	assert.Greater(t, params.Omega, 0.0)
	assert.Less(t, params.Alpha+params.Beta, 1.0)
}

func TestForecastVolatilityConvergesToLongRunLevel(t *testing.T) {
	returns := synthGARCH(300, 1e-5, 0.1, 0.85)
	params := forecast.GARCHParams{Omega: 1e-5, Alpha: 0.1, Beta: 0.85}

	points := forecast.ForecastVolatility(returns, params, 30)
	require.Len(t, points, 30)

	longRunVolPct := math.Sqrt(params.LongRunVariance()) * math.Sqrt(252) * 100
	final := points[29].Predicted
	assert.InEpsilon(t, longRunVolPct, final, 0.10,
		"30-day forecast should be within 10%% of the long-run level")

	// Monotone approach: each step's distance to L never grows.
	prevDist := math.Abs(points[0].Predicted - longRunVolPct)
	for _, p := range points[1:] {
		dist := math.Abs(p.Predicted - longRunVolPct)
		assert.LessOrEqual(t, dist, prevDist+1e-9)
		prevDist = dist
	}
}

func TestForecastVolatilityIntervalsContainPoint(t *testing.T) {
	returns := synthGARCH(300, 1e-5, 0.1, 0.85)
	params := forecast.GARCHParams{Omega: 1e-5, Alpha: 0.1, Beta: 0.85}

	for _, p := range forecast.ForecastVolatility(returns, params, 60) {
		assert.LessOrEqual(t, p.Lower, p.Predicted)
		assert.GreaterOrEqual(t, p.Upper, p.Predicted)
		assert.GreaterOrEqual(t, p.Lower, 0.0)
	}
}
