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

// Package forecast holds the pure forecasting engines: rolling-beta
// projection, GARCH(1,1) volatility estimation, and cash-flow-adjusted
// portfolio value forecasting. Like timeseries, nothing in this package
// suspends; jobs feed it data loaded from the store and persist whatever
// it returns through the cache protocol.
package forecast

import "gonum.org/v1/gonum/stat"

// Method selects a forecasting model. Ensemble blends the others with
// fixed weights (0.6/0.3/0.1 for beta, 0.4/0.4/0.2 for portfolio value).
type Method string

const (
	MethodMeanReversion Method = "mean_reversion"
	MethodExpSmoothing  Method = "exp_smoothing"
	MethodLinear        Method = "linear"
	MethodMovingAverage Method = "moving_average"
	MethodEnsemble      Method = "ensemble"
)

// Point is one forecast horizon with its 95% confidence interval. Every
// engine guarantees Lower <= Predicted <= Upper.
type Point struct {
	HorizonDays int     `json:"horizon_days"`
	Predicted   float64 `json:"predicted"`
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
}

// z95 is the two-sided 95% normal quantile used for every interval here.
const z95 = 1.96

// holt fits a Holt level/trend model over values and returns the fitted
// level and trend at the last observation.
func holt(values []float64, alpha, beta float64) (level, trend float64) {
	if len(values) == 0 {
		return 0, 0
	}
	level = values[0]
	if len(values) > 1 {
		trend = values[1] - values[0]
	}
	for i := 1; i < len(values); i++ {
		prevLevel := level
		level = alpha*values[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}
	return level, trend
}

// olsExtrapolate fits y = a + b*x over the trailing observations (x =
// 0..n-1) and returns the intercept/slope pair.
func olsExtrapolate(values []float64) (alpha, beta float64) {
	n := len(values)
	if n < 2 {
		if n == 1 {
			return values[0], 0
		}
		return 0, 0
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return stat.LinearRegression(xs, values, nil, false)
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
