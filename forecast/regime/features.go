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

// Package regime trains and scores the hidden Markov model over market
// regimes: four latent states (Bull, Bear, HighVol, Normal) emitting one
// of twenty discretised daily observations built from log returns and
// trailing realised volatility.
package regime

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/jeremycod/bcco/store"
)

// Discretisation: five log-return buckets crossed with four realised-
// volatility buckets give the 20-symbol emission alphabet.
const (
	NumReturnBuckets = 5
	NumVolBuckets    = 4
	NumSymbols       = NumReturnBuckets * NumVolBuckets

	// realizedVolWindow is the trailing window, in trading days, for the
	// annualised realised-volatility feature.
	realizedVolWindow = 21
)

// Bucket edges: daily log-return percentage and annualised realised
// volatility percentage.
var (
	returnBucketEdges = []float64{-2.0, -0.5, 0.5, 2.0}
	volBucketEdges    = []float64{10.0, 20.0, 35.0}
)

// Observation is one discretised trading day.
type Observation struct {
	Date         time.Time `json:"date"`
	LogReturnPct float64   `json:"log_return_pct"`
	RealizedVol  float64   `json:"realized_vol"`
	Symbol       int       `json:"symbol"`
}

// Observations converts a price history into the discretised feature
// sequence. The first realizedVolWindow days are dropped: the volatility
// feature is undefined until the trailing window fills.
func Observations(prices []store.PricePoint) []Observation {
	if len(prices) < realizedVolWindow+2 {
		return nil
	}

	logReturns := make([]float64, 0, len(prices)-1)
	dates := make([]time.Time, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1].Close <= 0 || prices[i].Close <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(prices[i].Close/prices[i-1].Close))
		dates = append(dates, prices[i].Date)
	}

	var out []Observation
	for i := realizedVolWindow; i < len(logReturns); i++ {
		window := logReturns[i-realizedVolWindow : i]
		annVolPct := stat.StdDev(window, nil) * math.Sqrt(252) * 100
		retPct := logReturns[i] * 100
		out = append(out, Observation{
			Date:         dates[i],
			LogReturnPct: retPct,
			RealizedVol:  annVolPct,
			Symbol:       Discretize(retPct, annVolPct),
		})
	}
	return out
}

// Discretize maps a (daily log-return %, annualised realised vol %) pair
// to one of the NumSymbols emission symbols.
func Discretize(logReturnPct, realizedVolPct float64) int {
	return bucket(logReturnPct, returnBucketEdges)*NumVolBuckets + bucket(realizedVolPct, volBucketEdges)
}

func bucket(x float64, edges []float64) int {
	for i, edge := range edges {
		if x < edge {
			return i
		}
	}
	return len(edges)
}
