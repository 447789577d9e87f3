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
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/jeremycod/bcco/errs"
)

// minGARCHObservations is the smallest return history the estimator
// accepts; below a trading year the quasi-likelihood surface is too flat
// for even a coarse grid to be meaningful.
const minGARCHObservations = 252

// The grid-search candidates. Omega is expressed as multiples of omega0,
// itself scaled so the grid's central (alpha=0.10, beta=0.85) cell puts
// the long-run variance at the sample variance.
var (
	garchOmegaScales = []float64{0.5, 1.0, 1.5, 2.0}
	garchAlphaGrid   = []float64{0.05, 0.08, 0.10, 0.12, 0.15}
	garchBetaGrid    = []float64{0.80, 0.82, 0.85, 0.87, 0.90}
)

// stationarityBound rejects parameter pairs whose persistence alpha+beta
// leaves no finite long-run variance.
const stationarityBound = 0.999

// GARCHParams is one accepted GARCH(1,1) parameter triple. Invariants:
// Omega > 0, Alpha >= 0, Beta >= 0, Alpha+Beta < 1.
type GARCHParams struct {
	Omega float64 `json:"omega"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// LongRunVariance is L = omega / (1 - alpha - beta), the level multi-step
// forecasts converge to.
func (p GARCHParams) LongRunVariance() float64 {
	return p.Omega / (1 - p.Alpha - p.Beta)
}

// VolatilityForecast is the persisted payload for volatility_forecasts.
type VolatilityForecast struct {
	Ticker      string      `json:"ticker"`
	Params      GARCHParams `json:"params"`
	Points      []Point     `json:"points"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// EstimateGARCH fits GARCH(1,1) to daily returns by maximising the
// Gaussian quasi-log-likelihood over the coarse grid. Requires at least
// 252 observations.
func EstimateGARCH(returns []float64) (GARCHParams, error) {
	if len(returns) < minGARCHObservations {
		return GARCHParams{}, errs.New(errs.Validation, "insufficient observations for GARCH estimation").
			WithField("observations", len(returns))
	}

	sampleVar := stat.Variance(returns, nil)
	if sampleVar <= 0 {
		return GARCHParams{}, errs.New(errs.Validation, "degenerate return series: zero variance")
	}
	omega0 := sampleVar * (1 - 0.10 - 0.85)

	best := GARCHParams{}
	bestLL := math.Inf(-1)
	for _, oScale := range garchOmegaScales {
		omega := oScale * omega0
		if omega <= 0 {
			continue
		}
		for _, alpha := range garchAlphaGrid {
			for _, beta := range garchBetaGrid {
				if alpha+beta >= stationarityBound {
					continue
				}
				ll := garchLogLikelihood(returns, omega, alpha, beta, sampleVar)
				if ll > bestLL {
					bestLL = ll
					best = GARCHParams{Omega: omega, Alpha: alpha, Beta: beta}
				}
			}
		}
	}

	if math.IsInf(bestLL, -1) {
		return GARCHParams{}, errs.New(errs.Validation, "no admissible GARCH parameters on grid")
	}
	return best, nil
}

// garchLogLikelihood filters the conditional variance recursion
// sigma2[t] = omega + alpha*r[t-1]^2 + beta*sigma2[t-1] (seeded at the
// sample variance) and accumulates the Gaussian quasi-log-likelihood in
// array order.
func garchLogLikelihood(returns []float64, omega, alpha, beta, seedVar float64) float64 {
	sigma2 := seedVar
	ll := 0.0
	for t := 1; t < len(returns); t++ {
		sigma2 = omega + alpha*returns[t-1]*returns[t-1] + beta*sigma2
		if sigma2 <= 0 {
			return math.Inf(-1)
		}
		ll += -0.5 * (math.Log(2*math.Pi) + math.Log(sigma2) + returns[t]*returns[t]/sigma2)
	}
	return ll
}

// filteredVariance runs the variance recursion over the full history and
// returns the conditional variance at the final observation.
func filteredVariance(returns []float64, p GARCHParams) float64 {
	sigma2 := stat.Variance(returns, nil)
	for t := 1; t < len(returns); t++ {
		sigma2 = p.Omega + p.Alpha*returns[t-1]*returns[t-1] + p.Beta*sigma2
	}
	return sigma2
}

// ForecastVolatility produces an annualised percentage volatility path
// out to horizonDays: sigma2[t+h] = L + (alpha+beta)^h * (sigma2[t] - L).
// Interval width grows with sqrt(h).
func ForecastVolatility(returns []float64, p GARCHParams, horizonDays int) []Point {
	L := p.LongRunVariance()
	sigma2 := filteredVariance(returns, p)
	persistence := p.Alpha + p.Beta

	out := make([]Point, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		variance := L + math.Pow(persistence, float64(h))*(sigma2-L)
		if variance < 0 {
			variance = 0
		}
		annualVolPct := math.Sqrt(variance) * math.Sqrt(tradingDays) * 100

		width := z95 * annualVolPct * 0.10 * math.Sqrt(float64(h)/float64(tradingDays))
		lower := annualVolPct - width
		if lower < 0 {
			lower = 0
		}
		out = append(out, Point{
			HorizonDays: h,
			Predicted:   annualVolPct,
			Lower:       lower,
			Upper:       annualVolPct + width,
		})
	}
	return out
}

const tradingDays = 252
