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
	"github.com/jeremycod/bcco/store"
)

// Sanity caps on portfolio value forecasts. Deposits masquerading as
// growth are removed by the cash-flow adjustment, and what survives is
// still capped so an optimistic fit can't promise the moon.
const (
	shortTermMonthlyCapPct       = 0.15 // monthly growth cap, horizon <= 1y
	shortTermScarceMonthlyCapPct = 0.08 // tighter cap when history is scarce
	scarceHistoryObservations    = 90
	longTermCAGRCap              = 0.12 // point-forecast CAGR cap past 1y
	longTermLowerFloorFrac       = 0.70 // CI floor after multi-year horizons
)

const (
	valueHoltAlpha  = 0.3
	valueHoltBeta   = 0.1
	valueMALookback = 30
)

// Value ensemble weights: regression and smoothing split the signal, the
// moving average anchors it.
const (
	valueEnsembleLinWeight  = 0.4
	valueEnsembleHoltWeight = 0.4
	valueEnsembleMAWeight   = 0.2
)

// ValueForecast is the persisted payload for a portfolio value forecast.
type ValueForecast struct {
	PortfolioID  string    `json:"portfolio_id"`
	Method       Method    `json:"method"`
	CurrentValue float64   `json:"current_value"`
	Points       []Point   `json:"points"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// AdjustForCashFlows subtracts the cumulative net external flows
// (deposits minus withdrawals) up to each date, clamping at zero, so the
// forecast models investment growth rather than contribution cadence.
// The input must be ordered by date; flows likewise.
func AdjustForCashFlows(values []store.DatedValue, flows []store.CashFlow) []store.DatedValue {
	out := make([]store.DatedValue, len(values))
	flowIdx := 0
	cumulative := 0.0
	for i, v := range values {
		for flowIdx < len(flows) && !flows[flowIdx].FlowDate.After(v.Date) {
			switch flows[flowIdx].FlowType {
			case store.FlowDeposit:
				cumulative += flows[flowIdx].Amount
			case store.FlowWithdrawal:
				cumulative -= flows[flowIdx].Amount
			}
			flowIdx++
		}
		adjusted := v.Value - cumulative
		if adjusted < 0 {
			adjusted = 0
		}
		out[i] = store.DatedValue{Date: v.Date, Value: adjusted}
	}
	return out
}

// ForecastPortfolioValue forecasts a portfolio's value horizonDays out.
// History is cash-flow adjusted first, the chosen model is fit on the
// adjusted series, and the result is rescaled so the h=0 baseline equals
// the real (unadjusted) current value before the sanity caps are applied.
func ForecastPortfolioValue(values []store.DatedValue, flows []store.CashFlow, horizonDays int, method Method) ([]Point, error) {
	if len(values) < 2 {
		return nil, errs.New(errs.Validation, "insufficient value history for forecast").
			WithField("observations", len(values))
	}
	if horizonDays < 1 {
		return nil, errs.New(errs.Validation, "forecast horizon must be positive")
	}

	adjusted := AdjustForCashFlows(values, flows)
	series := make([]float64, len(adjusted))
	for i, v := range adjusted {
		series[i] = v.Value
	}

	currentReal := values[len(values)-1].Value
	currentAdjusted := series[len(series)-1]
	scale := 1.0
	if currentAdjusted > 0 {
		scale = currentReal / currentAdjusted
	}

	residualSD := forecastResidualSD(series)

	out := make([]Point, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		var predicted float64
		switch method {
		case MethodLinear:
			predicted = linearValue(series, h)
		case MethodExpSmoothing:
			predicted = holtValue(series, h)
		case MethodMovingAverage:
			predicted = movingAverageValue(series)
		case MethodEnsemble:
			predicted = valueEnsembleLinWeight*linearValue(series, h) +
				valueEnsembleHoltWeight*holtValue(series, h) +
				valueEnsembleMAWeight*movingAverageValue(series)
		default:
			return nil, errs.New(errs.Validation, "unknown value forecast method").
				WithField("method", string(method))
		}

		predicted *= scale
		if predicted < 0 {
			predicted = 0
		}
		predicted = applyValueCaps(predicted, currentReal, h, len(series))

		width := z95 * residualSD * scale * math.Sqrt(float64(h))
		lower := predicted - width
		upper := predicted + width
		if lower < 0 {
			lower = 0
		}
		if h > 2*365 {
			floor := currentReal * longTermLowerFloorFrac
			if lower < floor {
				lower = floor
			}
		}
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

func linearValue(series []float64, h int) float64 {
	intercept, slope := olsExtrapolate(series)
	return intercept + slope*float64(len(series)-1+h)
}

func holtValue(series []float64, h int) float64 {
	level, trend := holt(series, valueHoltAlpha, valueHoltBeta)
	return level + trend*float64(h)
}

func movingAverageValue(series []float64) float64 {
	window := tail(series, valueMALookback)
	return stat.Mean(window, nil)
}

// applyValueCaps enforces the growth ceilings: a monthly cap
// inside one year (tightened when history is scarce), a 12% CAGR cap on
// the point forecast beyond it.
func applyValueCaps(predicted, current float64, h, observations int) float64 {
	if current <= 0 {
		return predicted
	}
	if h <= 365 {
		monthlyCap := shortTermMonthlyCapPct
		if observations < scarceHistoryObservations {
			monthlyCap = shortTermScarceMonthlyCapPct
		}
		ceil := current * math.Pow(1+monthlyCap, float64(h)/30.0)
		if predicted > ceil {
			return ceil
		}
		return predicted
	}
	ceil := current * math.Pow(1+longTermCAGRCap, float64(h)/365.0)
	if predicted > ceil {
		return ceil
	}
	return predicted
}

// forecastResidualSD estimates day-over-day noise on the adjusted series
// for interval construction.
func forecastResidualSD(series []float64) float64 {
	if len(series) < 3 {
		return 0
	}
	diffs := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		diffs[i-1] = series[i] - series[i-1]
	}
	return stat.StdDev(diffs, nil)
}
