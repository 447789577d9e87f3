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

package riskengine

import (
	"context"
	"time"

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/store"
	"github.com/jeremycod/bcco/timeseries"
)

// Engine computes risk metrics against a price store and a risk-free
// rate; it is deliberately small so it can be constructed once per
// process and shared by every job handler.
type Engine struct {
	store        *store.Store
	priceEnsurer PriceEnsurer
	riskFreeRate float64
}

func New(s *store.Store, ensurer PriceEnsurer, riskFreeRate float64) *Engine {
	return &Engine{store: s, priceEnsurer: ensurer, riskFreeRate: riskFreeRate}
}

// ComputeRiskMetrics ensures fresh prices for ticker and benchmark,
// derives volatility/drawdown/beta/Sharpe/VaR over the trailing window,
// and scores the result.
func (e *Engine) ComputeRiskMetrics(ctx context.Context, ticker string, windowDays int, benchmark string) (*RiskAssessment, error) {
	if err := e.priceEnsurer.EnsureFreshPrices(ctx, ticker); err != nil {
		return nil, errs.Wrap(errs.ExternalProvider, err, "ensure fresh prices: local leg").WithField("ticker", ticker)
	}
	if err := e.priceEnsurer.EnsureFreshPrices(ctx, benchmark); err != nil {
		return nil, errs.Wrap(errs.ExternalProvider, err, "ensure fresh prices: benchmark leg").WithField("ticker", benchmark)
	}

	asOf := time.Now()
	assetPoints, err := e.store.TrailingPrices(ctx, ticker, windowDays+1, asOf)
	if err != nil {
		return nil, err
	}
	benchPoints, err := e.store.TrailingPrices(ctx, benchmark, windowDays+1, asOf)
	if err != nil {
		return nil, err
	}
	if len(assetPoints) < 2 || len(benchPoints) < 2 {
		return nil, errs.New(errs.NotFound, "insufficient price history").
			WithField("ticker", ticker).WithField("benchmark", benchmark)
	}

	assetPrices := closePrices(assetPoints)
	assetReturns := timeseries.Returns(assetPrices)

	// Beta needs the two return series paired day-for-day; intersect the
	// price histories on shared dates so a gap in either leg shifts
	// nothing out of alignment.
	alignedAsset, alignedBench := alignByDate(assetPoints, benchPoints)

	volatility := timeseries.Volatility(assetReturns)
	maxDrawdown := timeseries.MaxDrawdown(assetPrices) * 100
	beta := timeseries.Beta(timeseries.Returns(alignedAsset), timeseries.Returns(alignedBench))
	sharpe := timeseries.Sharpe(assetReturns, e.riskFreeRate)
	valueAtRisk := timeseries.ValueAtRisk(assetReturns, 0.05)

	score := ScoreRisk(volatility, maxDrawdown, beta, valueAtRisk)

	return &RiskAssessment{
		Ticker:      ticker,
		Benchmark:   benchmark,
		WindowDays:  windowDays,
		Volatility:  volatility,
		MaxDrawdown: maxDrawdown,
		Beta:        beta,
		Sharpe:      sharpe,
		ValueAtRisk: valueAtRisk,
		RiskScore:   score,
		RiskLevel:   LevelForScore(score),
	}, nil
}

func closePrices(points []store.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// alignByDate merge-walks two date-ordered price histories and returns
// the close prices on the dates present in both.
func alignByDate(a, b []store.PricePoint) (closesA, closesB []float64) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Date.Before(b[j].Date):
			i++
		case b[j].Date.Before(a[i].Date):
			j++
		default:
			closesA = append(closesA, a[i].Close)
			closesB = append(closesB, b[j].Close)
			i++
			j++
		}
	}
	return closesA, closesB
}
