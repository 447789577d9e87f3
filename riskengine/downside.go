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
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/timeseries"
)

// DownsideMetrics isolates loss-side risk for one position or the
// weighted portfolio: only returns below zero contribute to the
// deviation, so a choppy-but-rising asset scores better here than under
// plain volatility.
type DownsideMetrics struct {
	Ticker            string   `json:"ticker,omitempty"`
	Weight            float64  `json:"weight,omitempty"`
	DownsideDeviation float64  `json:"downside_deviation"`
	Sortino           *float64 `json:"sortino,omitempty"`
	ValueAtRisk       float64  `json:"value_at_risk"`
	ExpectedShortfall float64  `json:"expected_shortfall"`
	MaxDrawdown       float64  `json:"max_drawdown"`
}

// PortfolioDownsideRisk is the persisted payload for downside_risk_cache.
type PortfolioDownsideRisk struct {
	PortfolioID  string            `json:"portfolio_id"`
	WindowDays   int               `json:"window_days"`
	Aggregate    DownsideMetrics   `json:"aggregate"`
	Positions    []DownsideMetrics `json:"positions"`
	CalculatedAt time.Time         `json:"calculated_at"`
}

// DownsideFromReturns computes the loss-side metrics for one return
// series plus its price path (for drawdown).
func DownsideFromReturns(returns, prices []float64, rfAnnual float64) DownsideMetrics {
	m := DownsideMetrics{
		ValueAtRisk: timeseries.ValueAtRisk(returns, 0.05),
		MaxDrawdown: timeseries.MaxDrawdown(prices) * 100,
	}

	var losses []float64
	for _, r := range returns {
		if r < 0 {
			losses = append(losses, r)
		}
	}
	if len(losses) >= 2 {
		// Deviation about zero, not the loss mean: the target return for
		// downside risk is break-even.
		sumSq := 0.0
		for _, l := range losses {
			sumSq += l * l
		}
		dd := math.Sqrt(sumSq/float64(len(returns))) * math.Sqrt(252) * 100
		m.DownsideDeviation = dd

		if dd > 0 {
			meanAnnual := stat.Mean(returns, nil) * 252
			sortino := (meanAnnual - rfAnnual) / (dd / 100)
			m.Sortino = &sortino
		}
	}

	// Expected shortfall: mean of returns at or below the 5% VaR.
	varFrac := m.ValueAtRisk / 100
	var tailSum float64
	tailCount := 0
	for _, r := range returns {
		if r <= varFrac {
			tailSum += r
			tailCount++
		}
	}
	if tailCount > 0 {
		m.ExpectedShortfall = tailSum / float64(tailCount) * 100
	}
	return m
}

// ComputePortfolioDownside aggregates per-position downside metrics with
// the same weighting and skip-on-provider-failure discipline as the main
// portfolio risk path.
func (e *Engine) ComputePortfolioDownside(ctx context.Context, portfolioID string, windowDays int) (*PortfolioDownsideRisk, error) {
	holdings, err := e.store.LatestHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, errs.New(errs.NotFound, "portfolio has no holdings").WithField("portfolio_id", portfolioID)
	}

	valueByTicker := map[string]float64{}
	total := 0.0
	for _, h := range holdings {
		valueByTicker[h.Ticker] += h.MarketValue
		total += h.MarketValue
	}
	if total <= 0 {
		return nil, errs.New(errs.Validation, "portfolio has zero value").WithField("portfolio_id", portfolioID)
	}

	asOf := time.Now()
	var positions []DownsideMetrics
	for ticker, value := range valueByTicker {
		weight := value / total
		if weight < minPositionWeight {
			continue
		}
		if err := e.priceEnsurer.EnsureFreshPrices(ctx, ticker); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Str("portfolio_id", portfolioID).
				Msg("skipping downside metrics after provider failure")
			continue
		}
		points, err := e.store.TrailingPrices(ctx, ticker, windowDays+1, asOf)
		if err != nil {
			return nil, err
		}
		if len(points) < 2 {
			continue
		}
		prices := closePrices(points)
		m := DownsideFromReturns(timeseries.Returns(prices), prices, e.riskFreeRate)
		m.Ticker = ticker
		m.Weight = weight
		positions = append(positions, m)
	}
	if len(positions) == 0 {
		return nil, errs.New(errs.ExternalProvider, "no positions with usable price data").WithField("portfolio_id", portfolioID)
	}

	var agg DownsideMetrics
	var sortinoSum, sortinoWeight float64
	for _, p := range positions {
		agg.DownsideDeviation += p.Weight * p.DownsideDeviation
		agg.ValueAtRisk += p.Weight * p.ValueAtRisk
		agg.ExpectedShortfall += p.Weight * p.ExpectedShortfall
		agg.MaxDrawdown += p.Weight * p.MaxDrawdown
		if p.Sortino != nil {
			sortinoSum += p.Weight * *p.Sortino
			sortinoWeight += p.Weight
		}
	}
	if sortinoWeight > 0 {
		s := sortinoSum / sortinoWeight
		agg.Sortino = &s
	}

	return &PortfolioDownsideRisk{
		PortfolioID:  portfolioID,
		WindowDays:   windowDays,
		Aggregate:    agg,
		Positions:    positions,
		CalculatedAt: time.Now(),
	}, nil
}
