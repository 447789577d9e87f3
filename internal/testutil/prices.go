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

// Package testutil holds the pgxmock row builders and deterministic
// synthetic price generators shared by package tests. No randomness:
// the same inputs always produce the same series, so assertions on
// derived statistics stay stable.
package testutil

import (
	"math"
	"time"

	"github.com/pashagolub/pgxmock"

	"github.com/jeremycod/bcco/store"
)

// SyntheticPrices builds n daily close prices for ticker: a gentle
// exponential drift with a sine wobble whose phase is derived from the
// ticker so different symbols decorrelate.
func SyntheticPrices(ticker string, n int, start, dailyDrift, wobble float64) []store.PricePoint {
	phase := 0.0
	for _, c := range ticker {
		phase += float64(c)
	}
	first := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)

	out := make([]store.PricePoint, n)
	price := start
	for i := 0; i < n; i++ {
		price *= 1 + dailyDrift + wobble*math.Sin(phase+float64(i)/3.0)
		out[i] = store.PricePoint{Ticker: ticker, Date: first.AddDate(0, 0, i), Close: price}
	}
	return out
}

// PriceRows converts a price series into the pgxmock rows TrailingPrices
// scans.
func PriceRows(points []store.PricePoint) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"ticker", "date", "close_price"})
	for _, p := range points {
		rows.AddRow(p.Ticker, p.Date, p.Close)
	}
	return rows
}

// HoldingRows converts holdings into the pgxmock rows LatestHoldings
// scans.
func HoldingRows(holdings []store.HoldingSnapshot) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"account_id", "snapshot_date", "ticker", "quantity", "market_value", "holding_name", "industry",
	})
	for _, h := range holdings {
		rows.AddRow(h.AccountID, h.SnapshotDate, h.Ticker, h.Quantity, h.MarketValue, h.HoldingName, h.Industry)
	}
	return rows
}
