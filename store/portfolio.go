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

// PortfolioIDs returns every distinct portfolio_id known to the accounts
// table, in ascending order -- the deterministic processing order the
// job runtime relies on.
func (s *Store) PortfolioIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT portfolio_id FROM accounts ORDER BY portfolio_id`)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "portfolio ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan portfolio id")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LatestHoldings returns the holding snapshot rows for portfolioID's
// accounts as of the most recent snapshot_date across those accounts.
func (s *Store) LatestHoldings(ctx context.Context, portfolioID string) ([]HoldingSnapshot, error) {
	rows, err := s.conn.Query(ctx, `
		WITH acct AS (
			SELECT account_id FROM accounts WHERE portfolio_id = $1
		), latest AS (
			SELECT max(snapshot_date) AS d FROM holding_snapshots
			WHERE account_id IN (SELECT account_id FROM acct)
		)
		SELECT account_id, snapshot_date, ticker, quantity, market_value,
		       coalesce(holding_name, ''), coalesce(industry, '')
		FROM holding_snapshots
		WHERE account_id IN (SELECT account_id FROM acct)
		  AND snapshot_date = (SELECT d FROM latest)`,
		portfolioID)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "latest holdings").WithField("portfolio_id", portfolioID)
	}
	defer rows.Close()

	var out []HoldingSnapshot
	for rows.Next() {
		var h HoldingSnapshot
		if err := rows.Scan(&h.AccountID, &h.SnapshotDate, &h.Ticker, &h.Quantity, &h.MarketValue,
			&h.HoldingName, &h.Industry); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan holding")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// TopTickersByPositionCount returns the limit most widely held tickers
// across all current holdings, most popular first. Used by the
// cache-clearing jobs that only refresh the hottest symbols.
func (s *Store) TopTickersByPositionCount(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ticker FROM holding_snapshots
		WHERE snapshot_date = (SELECT max(snapshot_date) FROM holding_snapshots)
		GROUP BY ticker
		ORDER BY count(DISTINCT account_id) DESC, ticker ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "top tickers by position count")
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

// ThresholdRow holds a portfolio's configured risk limits. found is
// false when the portfolio has no row, in which case callers use the
// documented defaults.
type ThresholdRow struct {
	MaxVolatility float64
	MaxDrawdown   float64
	MaxBeta       float64
	MaxRiskScore  float64
	MaxVaR        float64
}

// ThresholdSettings loads portfolioID's configured limits.
func (s *Store) ThresholdSettings(ctx context.Context, portfolioID string) (t ThresholdRow, found bool, err error) {
	row := s.conn.QueryRow(ctx, `
		SELECT max_volatility, max_drawdown, max_beta, max_risk_score, max_var
		FROM portfolio_threshold_settings WHERE portfolio_id = $1`, portfolioID)
	scanErr := row.Scan(&t.MaxVolatility, &t.MaxDrawdown, &t.MaxBeta, &t.MaxRiskScore, &t.MaxVaR)
	if scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return ThresholdRow{}, false, nil
		}
		return ThresholdRow{}, false, errs.Wrap(errs.DbFailure, scanErr, "threshold settings").WithField("portfolio_id", portfolioID)
	}
	return t, true, nil
}

// CashFlowsSince returns every cash flow for portfolioID's accounts on or
// after since, ordered by flow_date -- used to cash-flow-adjust the
// portfolio value history before forecasting.
func (s *Store) CashFlowsSince(ctx context.Context, portfolioID string, since time.Time) ([]CashFlow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT cf.account_id, cf.flow_date, cf.amount, cf.flow_type
		FROM cash_flows cf
		JOIN accounts a ON a.account_id = cf.account_id
		WHERE a.portfolio_id = $1 AND cf.flow_date >= $2
		ORDER BY cf.flow_date ASC`,
		portfolioID, since)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "cash flows").WithField("portfolio_id", portfolioID)
	}
	defer rows.Close()

	var out []CashFlow
	for rows.Next() {
		var c CashFlow
		if err := rows.Scan(&c.AccountID, &c.FlowDate, &c.Amount, &c.FlowType); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan cash flow")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
