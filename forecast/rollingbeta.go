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

package forecast

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/jeremycod/bcco/timeseries"
)

// RollingBetaSeries is the persisted payload for rolling_beta_cache.
type RollingBetaSeries struct {
	Ticker      string      `json:"ticker"`
	Benchmark   string      `json:"benchmark"`
	WindowDays  int         `json:"window_days"`
	Points      []BetaPoint `json:"points"`
	CurrentBeta float64     `json:"current_beta"`
	BetaVol     float64     `json:"beta_vol"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// RollingBeta computes beta over a sliding window of aligned daily
// returns. dates must align with the returns (dates[i] is the day of
// assetReturns[i]); windows where the benchmark variance degenerates are
// skipped.
func RollingBeta(dates []time.Time, assetReturns, benchReturns []float64, window int) []BetaPoint {
	n := len(assetReturns)
	if len(benchReturns) < n {
		n = len(benchReturns)
	}
	var out []BetaPoint
	for i := window; i <= n; i++ {
		b := timeseries.Beta(assetReturns[i-window:i], benchReturns[i-window:i])
		if b == nil {
			continue
		}
		out = append(out, BetaPoint{Date: dates[i-1], Beta: *b})
	}
	return out
}

// BetaVolatility is the standard deviation of the rolling-beta series,
// used to scale forecast confidence intervals.
func BetaVolatility(points []BetaPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	betas := make([]float64, len(points))
	for i, p := range points {
		betas[i] = p.Beta
	}
	return stat.StdDev(betas, nil)
}
