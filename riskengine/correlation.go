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
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/common"
	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/timeseries"
)

// highCorrelationThreshold is the |rho| cutoff above which a pair is
// counted toward HighlyCorrelatedFraction.
const highCorrelationThreshold = 0.7

// ComputeCorrelationMatrix filters proprietary/fund tickers, drops dust
// positions, truncates to the top N by market value, fetches price
// windows, and builds a symmetric unit-diagonal matrix from pairwise
// Pearson correlations.
func (e *Engine) ComputeCorrelationMatrix(ctx context.Context, portfolioID string, windowDays int, cfg *config.Config) (*CorrelationMatrixWithStats, error) {
	holdings, err := e.store.LatestHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return nil, errs.New(errs.NotFound, "portfolio has no holdings").WithField("portfolio_id", portfolioID)
	}

	type agg struct {
		marketValue float64
		industry    string
	}
	byTicker := map[string]*agg{}
	total := 0.0
	for _, h := range holdings {
		a, ok := byTicker[h.Ticker]
		if !ok {
			a = &agg{industry: h.Industry}
			byTicker[h.Ticker] = a
		}
		a.marketValue += h.MarketValue
		total += h.MarketValue
	}
	if total <= 0 {
		return nil, errs.New(errs.Validation, "portfolio has zero value").WithField("portfolio_id", portfolioID)
	}

	var candidates common.PairList
	for ticker, a := range byTicker {
		if IsProprietaryOrFund(ticker, a.industry, cfg.ProprietaryPrefixList, cfg.MutualFundBlocklist) {
			log.Warn().Str("ticker", ticker).Str("industry", a.industry).Str("reason", "proprietary or mutual fund").
				Msg("dropping ticker from correlation matrix")
			continue
		}
		weight := a.marketValue / total
		if weight < 0.01 {
			continue
		}
		candidates = append(candidates, common.Pair{Key: ticker, Value: a.marketValue})
	}

	sort.Sort(sort.Reverse(candidates))
	maxPositions := cfg.CorrelationMaxPositions
	if maxPositions <= 0 || maxPositions > len(candidates) {
		maxPositions = len(candidates)
	}
	if maxPositions > 10 {
		maxPositions = 10
	}
	candidates = candidates[:maxPositions]

	asOf := time.Now()
	returnsByTicker := map[string][]float64{}
	var kept []string
	for _, c := range candidates {
		if err := e.priceEnsurer.EnsureFreshPrices(ctx, c.Key); err != nil {
			log.Warn().Err(err).Str("ticker", c.Key).Msg("dropping ticker from correlation matrix after provider failure")
			continue
		}
		points, err := e.store.TrailingPrices(ctx, c.Key, windowDays+1, asOf)
		if err != nil {
			return nil, err
		}
		if len(points) < 2 {
			log.Warn().Str("ticker", c.Key).Msg("dropping ticker from correlation matrix: fewer than 2 price observations")
			continue
		}
		returnsByTicker[c.Key] = timeseries.Returns(closePrices(points))
		kept = append(kept, c.Key)
	}

	if len(kept) < 2 {
		return nil, errs.New(errs.Validation, "fewer than 2 tickers with usable price data after filtering").
			WithField("portfolio_id", portfolioID).WithField("candidates", len(candidates))
	}

	n := len(kept)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}

	var offDiagonal []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := returnsByTicker[kept[i]], returnsByTicker[kept[j]]
			length := minInt(len(a), len(b))
			rho := timeseries.Correlation(a[:length], b[:length])
			val := 0.0
			if rho != nil {
				val = *rho
			}
			matrix[i][j] = val
			matrix[j][i] = val
			offDiagonal = append(offDiagonal, val)
		}
	}

	stats := summarize(offDiagonal)

	return &CorrelationMatrixWithStats{
		PortfolioID:              portfolioID,
		WindowDays:               windowDays,
		Tickers:                  kept,
		Matrix:                   matrix,
		Mean:                     stats.mean,
		Min:                      stats.min,
		Max:                      stats.max,
		HighlyCorrelatedFraction: stats.highFraction,
		CalculatedAt:             time.Now(),
	}, nil
}

type corrStats struct {
	mean, min, max, highFraction float64
}

func summarize(values []float64) corrStats {
	if len(values) == 0 {
		return corrStats{}
	}
	sum, min, max := 0.0, values[0], values[0]
	highCount := 0
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		if abs(v) > highCorrelationThreshold {
			highCount++
		}
	}
	return corrStats{
		mean:         sum / float64(len(values)),
		min:          min,
		max:          max,
		highFraction: float64(highCount) / float64(len(values)),
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
