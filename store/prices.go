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

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/jeremycod/bcco/errs"
)

// UpsertPrices inserts or updates close prices for a ticker, one row per
// (ticker, date). Existing rows for the same date are overwritten so a
// provider correction replaces the prior value.
func (s *Store) UpsertPrices(ctx context.Context, points []PricePoint) error {
	for _, p := range points {
		_, err := s.conn.Exec(ctx, `
			INSERT INTO price_points (ticker, date, close_price, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (ticker, date) DO UPDATE SET close_price = EXCLUDED.close_price`,
			p.Ticker, p.Date, p.Close)
		if err != nil {
			return errs.Wrap(errs.DbFailure, err, "upsert price point").WithField("ticker", p.Ticker)
		}
	}
	return nil
}

// LatestPriceDate returns the most recent date with a stored price for
// ticker, or the zero time if none exists.
func (s *Store) LatestPriceDate(ctx context.Context, ticker string) (time.Time, error) {
	var d time.Time
	row := s.conn.QueryRow(ctx, `SELECT max(date) FROM price_points WHERE ticker = $1`, ticker)
	if err := row.Scan(&d); err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, errs.Wrap(errs.DbFailure, err, "latest price date").WithField("ticker", ticker)
	}
	return d, nil
}

// TrailingPrices returns up to windowDays of close prices for ticker,
// ordered oldest-first, ending at (or before) asOf.
func (s *Store) TrailingPrices(ctx context.Context, ticker string, windowDays int, asOf time.Time) ([]PricePoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ticker, date, close_price FROM (
			SELECT ticker, date, close_price
			FROM price_points
			WHERE ticker = $1 AND date <= $2
			ORDER BY date DESC
			LIMIT $3
		) recent ORDER BY date ASC`,
		ticker, asOf, windowDays)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "trailing prices").WithField("ticker", ticker)
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Ticker, &p.Date, &p.Close); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan price point")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DistinctTickers returns every ticker referenced by a current holding,
// used by refresh_prices to decide what to fetch.
func (s *Store) DistinctTickers(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT ticker FROM holding_snapshots
		WHERE snapshot_date = (SELECT max(snapshot_date) FROM holding_snapshots)`)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "distinct tickers")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan ticker")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
