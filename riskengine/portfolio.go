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

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/errs"
)

// minPositionWeight drops positions below 0.1% of portfolio value
// before risk aggregation.
const minPositionWeight = 0.001

// ComputePortfolioRisk loads the latest holdings, drops dust positions,
// computes per-ticker risk (skipping provider failures rather than
// failing the whole portfolio), weight-averages the results, and flags
// threshold violations.
func (e *Engine) ComputePortfolioRisk(ctx context.Context, portfolioID string, windowDays int, benchmark string, thresholds Thresholds) (*PortfolioRiskWithViolations, error) {
	holdings, err := e.store.LatestHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, errs.New(errs.NotFound, "portfolio has no holdings").WithField("portfolio_id", portfolioID)
	}

	type agg struct {
		quantity    float64
		marketValue float64
	}
	byTicker := map[string]*agg{}
	total := 0.0
	for _, h := range holdings {
		a, ok := byTicker[h.Ticker]
		if !ok {
			a = &agg{}
			byTicker[h.Ticker] = a
		}
		a.quantity += h.Quantity
		a.marketValue += h.MarketValue
		total += h.MarketValue
	}
	if total <= 0 {
		return nil, errs.New(errs.Validation, "portfolio has zero value").WithField("portfolio_id", portfolioID)
	}

	var positions []PositionRisk
	for ticker, a := range byTicker {
		weight := a.marketValue / total
		if weight < minPositionWeight {
			continue
		}
		assessment, err := e.ComputeRiskMetrics(ctx, ticker, windowDays, benchmark)
		if err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Str("portfolio_id", portfolioID).
				Msg("skipping ticker risk assessment after provider failure")
			continue
		}
		positions = append(positions, PositionRisk{Ticker: ticker, Weight: weight, Assessment: *assessment})
	}
	if len(positions) == 0 {
		return nil, errs.New(errs.ExternalProvider, "no positions with usable price data").WithField("portfolio_id", portfolioID)
	}

	var volSum, ddSum float64
	var betaSum, betaWeightTotal, sharpeSum, sharpeWeightTotal, varSum float64
	for _, p := range positions {
		volSum += p.Weight * p.Assessment.Volatility
		ddSum += p.Weight * p.Assessment.MaxDrawdown
		varSum += p.Weight * p.Assessment.ValueAtRisk
		if p.Assessment.Beta != nil {
			betaSum += p.Weight * *p.Assessment.Beta
			betaWeightTotal += p.Weight
		}
		if p.Assessment.Sharpe != nil {
			sharpeSum += p.Weight * *p.Assessment.Sharpe
			sharpeWeightTotal += p.Weight
		}
	}

	var beta, sharpe *float64
	if betaWeightTotal > 0 {
		b := betaSum / betaWeightTotal
		beta = &b
	}
	if sharpeWeightTotal > 0 {
		s := sharpeSum / sharpeWeightTotal
		sharpe = &s
	}

	score := ScoreRisk(volSum, ddSum, beta, varSum)

	result := &PortfolioRiskWithViolations{
		PortfolioID:  portfolioID,
		WindowDays:   windowDays,
		Benchmark:    benchmark,
		Volatility:   volSum,
		MaxDrawdown:  ddSum,
		Beta:         beta,
		Sharpe:       sharpe,
		ValueAtRisk:  varSum,
		RiskScore:    score,
		RiskLevel:    LevelForScore(score),
		Positions:    positions,
		CalculatedAt: time.Now(),
	}
	result.Violations = DetectViolations(positions, thresholds)
	return result, nil
}
