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

package riskengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/store"
)

type fakeEnsurer struct{}

func (fakeEnsurer) EnsureFreshPrices(ctx context.Context, ticker string) error { return nil }

func priceRows(start float64, n int) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"ticker", "date", "close_price"})
	// A fixed calendar so asset and benchmark rows share dates and the
	// beta alignment finds overlapping observations.
	base := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		rows.AddRow("X", base.AddDate(0, 0, i), price)
		price *= 1.001
	}
	return rows
}

func TestComputeRiskMetricsScoresWithinRange(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mock.ExpectQuery("SELECT ticker, date, close_price").WillReturnRows(priceRows(100, 40))
	mock.ExpectQuery("SELECT ticker, date, close_price").WillReturnRows(priceRows(200, 40))

	eng := riskengine.New(store.New(mock), fakeEnsurer{}, 0.045)
	assessment, err := eng.ComputeRiskMetrics(context.Background(), "AAPL", 30, "SPY")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, assessment.RiskScore, 0.0)
	assert.LessOrEqual(t, assessment.RiskScore, 100.0)
	assert.Equal(t, "AAPL", assessment.Ticker)
}

func TestComputeRiskMetricsFailsOnInsufficientHistory(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mock.ExpectQuery("SELECT ticker, date, close_price").WillReturnRows(priceRows(100, 1))
	mock.ExpectQuery("SELECT ticker, date, close_price").WillReturnRows(priceRows(200, 1))

	eng := riskengine.New(store.New(mock), fakeEnsurer{}, 0.045)
	_, err = eng.ComputeRiskMetrics(context.Background(), "AAPL", 30, "SPY")
	assert.Error(t, err)
}
