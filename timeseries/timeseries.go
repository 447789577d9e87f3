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

// Package timeseries implements the pure, stateless numerical primitives
// that every higher-level compute (risk, forecasting) is built from. Every
// function here operates on plain []float64 slices, never suspends, and
// never panics on NaN input -- it filters or propagates an absent value
// instead.
package timeseries

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// varianceFloor is the minimum denominator magnitude below which a
// division is treated as degenerate and an absent value is returned
// instead of a numerically unstable ratio.
const varianceFloor = 1e-15

const tradingDaysPerYear = 252

// SMA returns the simple moving average over the trailing window. The
// first window-1 elements are absent (nil in the returned slice).
func SMA(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			mean := sum / float64(window)
			out[i] = &mean
		}
	}
	return out
}

// EMA returns the exponential moving average with alpha = 2/(window+1),
// seeded with the first value. The first window-1 elements are absent.
func EMA(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(window) + 1.0)
	prev := values[0]
	for i, v := range values {
		if i == 0 {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		if i >= window-1 {
			val := prev
			out[i] = &val
		}
	}
	return out
}

// RSI computes the Relative Strength Index using Wilder smoothing. RSI is
// absent for the first `period` samples. When the average loss is zero,
// RSI is defined as 100. The result is always in [0, 100].
func RSI(prices []float64, period int) []*float64 {
	out := make([]*float64, len(prices))
	if period <= 0 || len(prices) <= period {
		return out
	}

	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	rsiAt := func(avgGain, avgLoss float64) float64 {
		if avgLoss == 0 {
			return 100
		}
		rs := avgGain / avgLoss
		return 100 - (100 / (1 + rs))
	}

	val := rsiAt(avgGain, avgLoss)
	out[period] = &val

	for i := period + 1; i < len(prices); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		v := rsiAt(avgGain, avgLoss)
		out[i] = &v
	}

	return out
}

// MACD returns the MACD line, the signal line (EMA of the MACD line), and
// the histogram (MACD - signal), each aligned to the input length.
func MACD(prices []float64, fast, slow, signal int) (macdLine, signalLine, histogram []float64) {
	n := len(prices)
	macdLine = make([]float64, n)
	signalLine = make([]float64, n)
	histogram = make([]float64, n)

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)

	macdSeries := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if fastEMA[i] != nil && slowEMA[i] != nil {
			v := *fastEMA[i] - *slowEMA[i]
			macdLine[i] = v
			macdSeries = append(macdSeries, v)
		}
	}

	signalEMA := EMA(macdSeries, signal)
	// signalEMA is only defined over the sub-slice where macdLine existed;
	// re-align it back onto the full-length output.
	j := 0
	for i := 0; i < n; i++ {
		if fastEMA[i] != nil && slowEMA[i] != nil {
			if signalEMA[j] != nil {
				signalLine[i] = *signalEMA[j]
			}
			histogram[i] = macdLine[i] - signalLine[i]
			j++
		}
	}

	return macdLine, signalLine, histogram
}

// BollingerBands returns the middle (SMA), upper and lower bands over the
// trailing window, using k standard deviations computed over that window.
func BollingerBands(prices []float64, period int, k float64) (middle, upper, lower []*float64) {
	n := len(prices)
	middle = make([]*float64, n)
	upper = make([]*float64, n)
	lower = make([]*float64, n)
	if period <= 0 {
		return
	}

	sma := SMA(prices, period)
	for i := period - 1; i < n; i++ {
		window := prices[i-period+1 : i+1]
		sd := stat.StdDev(window, nil)
		m := *sma[i]
		up := m + k*sd
		dn := m - k*sd
		middle[i] = sma[i]
		upper[i] = &up
		lower[i] = &dn
	}
	return
}

// Returns computes daily simple returns (p[i]-p[i-1])/p[i-1], dropping any
// entry where the previous price is <= 0.
func Returns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}

// Volatility returns the annualised standard deviation of returns, as a
// percentage (e.g. 18.2 for 18.2%).
func Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear) * 100
}

// MaxDrawdown returns the minimum value, over the price path, of
// (p[i]-peak[i])/peak[i]; always <= 0.
func MaxDrawdown(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	peak := prices[0]
	maxDD := 0.0
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			dd := (p - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Correlation returns the Pearson correlation of two aligned return series.
// Returns nil if either series has fewer than 2 observations or either
// series' standard deviation is below the variance floor.
func Correlation(series1, series2 []float64) *float64 {
	n := len(series1)
	if n != len(series2) || n < 2 {
		return nil
	}
	sd1 := stat.StdDev(series1, nil)
	sd2 := stat.StdDev(series2, nil)
	if sd1 < varianceFloor || sd2 < varianceFloor {
		return nil
	}
	rho := stat.Correlation(series1, series2, nil)
	if rho > 1 {
		rho = 1
	}
	if rho < -1 {
		rho = -1
	}
	return &rho
}

// Beta returns the regression slope of asset returns on benchmark returns
// (Cov/Var). Returns nil if the benchmark's variance is below the
// variance floor.
func Beta(assetReturns, benchmarkReturns []float64) *float64 {
	n := len(assetReturns)
	if n != len(benchmarkReturns) || n < 2 {
		return nil
	}
	varB := stat.Variance(benchmarkReturns, nil)
	if varB < varianceFloor {
		return nil
	}
	cov := stat.Covariance(assetReturns, benchmarkReturns, nil)
	b := cov / varB
	return &b
}

// Sharpe returns the annualised Sharpe ratio: (annualised mean - rf) /
// annualised stdev. rfAnnual is the annualised risk-free rate as a
// fraction (e.g. 0.045).
func Sharpe(returns []float64, rfAnnual float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	meanAnnual := stat.Mean(returns, nil) * tradingDaysPerYear
	sdAnnual := stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
	if sdAnnual < varianceFloor {
		return nil
	}
	s := (meanAnnual - rfAnnual) / sdAnnual
	return &s
}

// ValueAtRisk returns the historical 5th-percentile return (or the
// percentile named by alpha), expressed as a percentage and always <= 0
// for loss-bearing distributions.
func ValueAtRisk(returns []float64, alpha float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(alpha * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx] * 100
}

// ZScore standardises x against the mean and stdev of the population;
// returns 0 when the population stdev is below the variance floor.
func ZScore(x float64, population []float64) float64 {
	if len(population) < 2 {
		return 0
	}
	mean := stat.Mean(population, nil)
	sd := stat.StdDev(population, nil)
	if sd < varianceFloor {
		return 0
	}
	return (x - mean) / sd
}
