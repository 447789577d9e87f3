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
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/internal/testutil"
	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/store"
)

type noopEnsurer struct{}

func (noopEnsurer) EnsureFreshPrices(context.Context, string) error { return nil }

// Fifteen holdings: one six-letter proprietary fund symbol, two mutual
// funds by industry, and twelve ordinary tickers with descending values.
// The filter must drop the three ineligible names, truncate to the top
// ten by value, and produce a symmetric unit-diagonal 10x10 matrix.
func TestComputeCorrelationMatrixFiltersAndTruncates(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	snapshotDate := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	var holdings []store.HoldingSnapshot
	holdings = append(holdings,
		store.HoldingSnapshot{AccountID: "a1", SnapshotDate: snapshotDate, Ticker: "FIDXYZ", Quantity: 10, MarketValue: 500_000, Industry: "Asset Management"},
		store.HoldingSnapshot{AccountID: "a1", SnapshotDate: snapshotDate, Ticker: "BALA", Quantity: 10, MarketValue: 400_000, Industry: "Balanced Mutual Fund"},
		store.HoldingSnapshot{AccountID: "a1", SnapshotDate: snapshotDate, Ticker: "BALB", Quantity: 10, MarketValue: 300_000, Industry: "Balanced Mutual Fund"},
	)
	ordinary := make([]string, 12)
	for i := 0; i < 12; i++ {
		ticker := fmt.Sprintf("EQ%02d", i)
		ordinary[i] = ticker
		holdings = append(holdings, store.HoldingSnapshot{
			AccountID:    "a1",
			SnapshotDate: snapshotDate,
			Ticker:       ticker,
			Quantity:     100,
			MarketValue:  float64(120_000 - i*5_000),
			Industry:     "Technology",
		})
	}

	mock.ExpectQuery(regexp.QuoteMeta("WITH acct AS")).
		WillReturnRows(testutil.HoldingRows(holdings))

	// Price windows are fetched for the top ten ordinary tickers, in
	// descending value order.
	for i := 0; i < 10; i++ {
		prices := testutil.SyntheticPrices(ordinary[i], 120, 50+float64(i), 0.0004, 0.01)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT ticker, date, close_price FROM")).
			WillReturnRows(testutil.PriceRows(prices))
	}

	engine := riskengine.New(store.New(mock), noopEnsurer{}, 0.045)
	matrix, err := engine.ComputeCorrelationMatrix(context.Background(), "p1", 90, config.Defaults())
	require.NoError(t, err)

	assert.Equal(t, ordinary[:10], matrix.Tickers)
	require.Len(t, matrix.Matrix, 10)
	for i := 0; i < 10; i++ {
		require.Len(t, matrix.Matrix[i], 10)
		assert.InDelta(t, 1.0, matrix.Matrix[i][i], 1e-9)
		for j := 0; j < 10; j++ {
			assert.Equal(t, matrix.Matrix[i][j], matrix.Matrix[j][i])
			assert.LessOrEqual(t, matrix.Matrix[i][j], 1.0+1e-9)
			assert.GreaterOrEqual(t, matrix.Matrix[i][j], -1.0-1e-9)
		}
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeCorrelationMatrixNeedsTwoUsableTickers(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	snapshotDate := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	holdings := []store.HoldingSnapshot{
		{AccountID: "a1", SnapshotDate: snapshotDate, Ticker: "ONLY", Quantity: 10, MarketValue: 100_000, Industry: "Technology"},
		{AccountID: "a1", SnapshotDate: snapshotDate, Ticker: "FUNDXX", Quantity: 10, MarketValue: 100_000, Industry: "Balanced Mutual Fund"},
	}
	mock.ExpectQuery(regexp.QuoteMeta("WITH acct AS")).
		WillReturnRows(testutil.HoldingRows(holdings))

	prices := testutil.SyntheticPrices("ONLY", 120, 50, 0.0004, 0.01)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ticker, date, close_price FROM")).
		WillReturnRows(testutil.PriceRows(prices))

	engine := riskengine.New(store.New(mock), noopEnsurer{}, 0.045)
	_, err = engine.ComputeCorrelationMatrix(context.Background(), "p1", 90, config.Defaults())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fewer than 2 tickers")
}
