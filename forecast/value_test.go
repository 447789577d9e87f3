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

package forecast_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/forecast"
	"github.com/jeremycod/bcco/store"
)

// twoYearHistory builds two years of daily values growing gently, with a
// $50k deposit on day 100 and a $10k withdrawal on day 200.
func twoYearHistory() ([]store.DatedValue, []store.CashFlow) {
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	values := make([]store.DatedValue, 730)
	v := 100_000.0
	for i := range values {
		date := start.AddDate(0, 0, i)
		v *= 1.0003
		total := v
		if i >= 100 {
			total += 50_000
		}
		if i >= 200 {
			total -= 10_000
		}
		values[i] = store.DatedValue{Date: date, Value: total}
	}
	flows := []store.CashFlow{
		{AccountID: "a1", FlowDate: start.AddDate(0, 0, 100), Amount: 50_000, FlowType: store.FlowDeposit},
		{AccountID: "a1", FlowDate: start.AddDate(0, 0, 200), Amount: 10_000, FlowType: store.FlowWithdrawal},
	}
	return values, flows
}

func TestAdjustForCashFlowsRemovesDeposits(t *testing.T) {
	values, flows := twoYearHistory()
	adjusted := forecast.AdjustForCashFlows(values, flows)
	require.Len(t, adjusted, len(values))

	// Before the deposit, adjustment is a no-op.
	for i := 0; i < 100; i++ {
		assert.InDelta(t, values[i].Value, adjusted[i].Value, 1e-9)
	}
	// From the deposit onward, adjusted values are strictly below raw.
	for i := 100; i < len(values); i++ {
		assert.Less(t, adjusted[i].Value, values[i].Value)
	}
	// The withdrawal reduces the cumulative net flow, so days 200+ are
	// raw minus 40k, not minus 50k.
	assert.InDelta(t, values[250].Value-40_000, adjusted[250].Value, 1e-6)
}

func TestAdjustForCashFlowsClampsAtZero(t *testing.T) {
	values := []store.DatedValue{
		{Date: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1000},
		{Date: time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC), Value: 1100},
	}
	flows := []store.CashFlow{
		{AccountID: "a1", FlowDate: values[0].Date, Amount: 5000, FlowType: store.FlowDeposit},
	}
	adjusted := forecast.AdjustForCashFlows(values, flows)
	assert.Equal(t, 0.0, adjusted[0].Value)
	assert.Equal(t, 0.0, adjusted[1].Value)
}

func TestForecastStartsAtRealCurrentValue(t *testing.T) {
	values, flows := twoYearHistory()
	points, err := forecast.ForecastPortfolioValue(values, flows, 30, forecast.MethodEnsemble)
	require.NoError(t, err)
	require.Len(t, points, 30)

	current := values[len(values)-1].Value
	// The first horizon's prediction continues from the real current
	// value, not the adjusted baseline.
	assert.InEpsilon(t, current, points[0].Predicted, 0.02)
}

func TestForecastObservesCAGRCapAtOneYear(t *testing.T) {
	values, flows := twoYearHistory()
	points, err := forecast.ForecastPortfolioValue(values, flows, 400, forecast.MethodEnsemble)
	require.NoError(t, err)

	current := values[len(values)-1].Value
	p365 := points[364]
	assert.LessOrEqual(t, p365.Predicted, current*math.Pow(1.15, 365.0/30.0)+1e-6)
	p400 := points[399]
	assert.LessOrEqual(t, p400.Predicted, current*math.Pow(1.12, 400.0/365.0)+1e-6)
}

func TestForecastIntervalsContainPoint(t *testing.T) {
	values, flows := twoYearHistory()
	for _, method := range []forecast.Method{
		forecast.MethodLinear, forecast.MethodExpSmoothing,
		forecast.MethodMovingAverage, forecast.MethodEnsemble,
	} {
		points, err := forecast.ForecastPortfolioValue(values, flows, 90, method)
		require.NoError(t, err, "method %s", method)
		for _, p := range points {
			assert.LessOrEqual(t, p.Lower, p.Predicted)
			assert.GreaterOrEqual(t, p.Upper, p.Predicted)
		}
	}
}

func TestForecastRejectsUnknownMethod(t *testing.T) {
	values, flows := twoYearHistory()
	_, err := forecast.ForecastPortfolioValue(values, flows, 30, forecast.Method("prophetic"))
	assert.Error(t, err)
}
