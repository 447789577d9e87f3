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

// maxBetaHorizonDays bounds how far out a beta forecast may run.
const maxBetaHorizonDays = 90

// Beta forecasts are clamped to this range; a projected beta outside it
// says more about the model than the asset.
const (
	betaFloor = 0.0
	betaCeil  = 3.0
)

// Mean-reversion decay constant: alpha(h) = exp(-meanReversionRate*h),
// a half-life of roughly 140 days toward the market beta of 1.0.
const meanReversionRate = 0.005

// Holt smoothing parameters and lookbacks for the beta methods.
const (
	betaHoltAlpha    = 0.3
	betaHoltBeta     = 0.1
	betaHoltLookback = 10
	betaOLSLookback  = 30
)

// Ensemble weights: mean-reversion dominates, smoothing carries recent
// level shifts, the regression term contributes trend.
const (
	ensembleMRWeight  = 0.6
	ensembleESWeight  = 0.3
	ensembleLinWeight = 0.1
)

// BetaPoint is one observation of an asset's rolling beta.
type BetaPoint struct {
	Date time.Time `json:"date"`
	Beta float64   `json:"beta"`
}

// BetaForecast is the persisted payload for beta_forecast_cache.
type BetaForecast struct {
	Ticker      string    `json:"ticker"`
	Benchmark   string    `json:"benchmark"`
	Method      Method    `json:"method"`
	CurrentBeta float64   `json:"current_beta"`
	Points      []Point   `json:"points"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ForecastBeta produces daily beta forecasts out to horizonDays using the
// requested method. betaVol is the observed volatility of the rolling
// beta series, which scales the confidence interval by sqrt(h/30).
func ForecastBeta(history []BetaPoint, currentBeta, betaVol float64, horizonDays int, method Method) ([]Point, error) {
	if horizonDays < 1 || horizonDays > maxBetaHorizonDays {
		return nil, errs.New(errs.Validation, "beta forecast horizon out of range").
			WithField("horizon_days", horizonDays)
	}

	betas := make([]float64, len(history))
	for i, p := range history {
		betas[i] = p.Beta
	}

	out := make([]Point, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		var predicted float64
		switch method {
		case MethodMeanReversion:
			predicted = meanReversionBeta(currentBeta, h)
		case MethodExpSmoothing:
			predicted = holtBeta(betas, currentBeta, h)
		case MethodLinear:
			predicted = linearBeta(betas, currentBeta, h)
		case MethodEnsemble:
			predicted = ensembleMRWeight*meanReversionBeta(currentBeta, h) +
				ensembleESWeight*holtBeta(betas, currentBeta, h) +
				ensembleLinWeight*linearBeta(betas, currentBeta, h)
		default:
			return nil, errs.New(errs.Validation, "unknown beta forecast method").
				WithField("method", string(method))
		}

		predicted = clampBeta(predicted)
		width := z95 * betaVol * math.Sqrt(float64(h)/30.0) * methodWidthScale(method)
		lower := clampBeta(predicted - width)
		upper := clampBeta(predicted + width)
		if lower > predicted {
			lower = predicted
		}
		if upper < predicted {
			upper = predicted
		}
		out = append(out, Point{HorizonDays: h, Predicted: predicted, Lower: lower, Upper: upper})
	}
	return out, nil
}

func meanReversionBeta(current float64, h int) float64 {
	alpha := math.Exp(-meanReversionRate * float64(h))
	return alpha*current + (1-alpha)*1.0
}

func holtBeta(betas []float64, current float64, h int) float64 {
	window := tail(betas, betaHoltLookback)
	if len(window) < 2 {
		return current
	}
	level, trend := holt(window, betaHoltAlpha, betaHoltBeta)
	return level + trend*float64(h)
}

func linearBeta(betas []float64, current float64, h int) float64 {
	window := tail(betas, betaOLSLookback)
	if len(window) < 2 {
		return current
	}
	intercept, slope := olsExtrapolate(window)
	return intercept + slope*float64(len(window)-1+h)
}

// methodWidthScale widens intervals for the methods that extrapolate
// harder: a fitted trend carries more estimation variance than decay
// toward 1.0, while the ensemble's averaging cancels some of each.
func methodWidthScale(method Method) float64 {
	switch method {
	case MethodExpSmoothing:
		return 1.1
	case MethodLinear:
		return 1.25
	case MethodEnsemble:
		return 0.9
	default:
		return 1.0
	}
}

func clampBeta(b float64) float64 {
	if b < betaFloor {
		return betaFloor
	}
	if b > betaCeil {
		return betaCeil
	}
	return b
}

// BetaRegimeKind classifies a detected shift in the rolling-beta series.
type BetaRegimeKind string

const (
	RegimeHighVolatility BetaRegimeKind = "high_volatility"
	RegimeStructural     BetaRegimeKind = "structural_break"
	RegimeMeanReversion  BetaRegimeKind = "mean_reversion"
	RegimeIncreasing     BetaRegimeKind = "increasing_beta"
	RegimeDecreasing     BetaRegimeKind = "decreasing_beta"
)

// BetaRegimeChange marks one significant shift between adjacent 30-day
// windows of the rolling-beta history.
type BetaRegimeChange struct {
	Date         time.Time      `json:"date"`
	Kind         BetaRegimeKind `json:"kind"`
	MeanBefore   float64        `json:"mean_before"`
	MeanAfter    float64        `json:"mean_after"`
	Significance float64        `json:"significance"`
}

const (
	regimeWindow       = 30
	regimeStep         = 5
	regimeSignificance = 2.0
)

// DetectBetaRegimeChanges slides paired 30-day windows over the history
// and reports every point where |mu_after - mu_before| exceeds twice the
// before-window standard deviation.
func DetectBetaRegimeChanges(history []BetaPoint) []BetaRegimeChange {
	var out []BetaRegimeChange
	for i := regimeWindow; i+regimeWindow <= len(history); i += regimeStep {
		before := make([]float64, regimeWindow)
		after := make([]float64, regimeWindow)
		for j := 0; j < regimeWindow; j++ {
			before[j] = history[i-regimeWindow+j].Beta
			after[j] = history[i+j].Beta
		}
		muBefore := stat.Mean(before, nil)
		muAfter := stat.Mean(after, nil)
		sdBefore := stat.StdDev(before, nil)
		sdAfter := stat.StdDev(after, nil)
		if sdBefore < 1e-9 {
			continue
		}
		significance := math.Abs(muAfter-muBefore) / sdBefore
		if significance <= regimeSignificance {
			continue
		}
		out = append(out, BetaRegimeChange{
			Date:         history[i].Date,
			Kind:         classifyRegimeChange(muBefore, muAfter, sdBefore, sdAfter, significance),
			MeanBefore:   muBefore,
			MeanAfter:    muAfter,
			Significance: significance,
		})
	}
	return out
}

func classifyRegimeChange(muBefore, muAfter, sdBefore, sdAfter, significance float64) BetaRegimeKind {
	switch {
	case sdAfter > 2*sdBefore:
		return RegimeHighVolatility
	case significance > 2*regimeSignificance:
		return RegimeStructural
	case math.Abs(muAfter-1) < math.Abs(muBefore-1):
		return RegimeMeanReversion
	case muAfter > muBefore:
		return RegimeIncreasing
	default:
		return RegimeDecreasing
	}
}
