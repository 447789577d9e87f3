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
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/jeremycod/bcco/errs"
)

// KeyCol is one column/value pair of a cache table's natural key, e.g.
// {"portfolio_id", "abc-123"}. Order matters: it drives both the WHERE
// clause and the ON CONFLICT target, so callers must pass columns in the
// same order the table's unique constraint was declared in.
type KeyCol struct {
	Col string
	Val interface{}
}

// CacheTable describes one of the four-state cache tables named in the
// storage schema. Every cache table shares this shape closely enough
// that a single generic implementation covers all of them; only the
// table name, key columns and data column name vary, plus whether
// retry_count is tracked.
type CacheTable struct {
	Name          string
	DataColumn    string
	HasRetryCount bool
}

var (
	PortfolioRiskCache         = CacheTable{Name: "portfolio_risk_cache", DataColumn: "risk_data", HasRetryCount: true}
	PortfolioCorrelationsCache = CacheTable{Name: "portfolio_correlations_cache", DataColumn: "correlations_data", HasRetryCount: false}
	BetaForecastCache          = CacheTable{Name: "beta_forecast_cache", DataColumn: "forecast_data", HasRetryCount: true}
	VolatilityForecastCache    = CacheTable{Name: "volatility_forecasts", DataColumn: "forecast_data", HasRetryCount: true}
	EnhancedSentimentCache     = CacheTable{Name: "enhanced_sentiment_cache", DataColumn: "sentiment_data", HasRetryCount: true}
	PortfolioNarrativeCache    = CacheTable{Name: "portfolio_narrative_cache", DataColumn: "narrative_data", HasRetryCount: false}
	ScreeningCache             = CacheTable{Name: "screening_cache", DataColumn: "screening_data", HasRetryCount: false}
	RollingBetaCache           = CacheTable{Name: "rolling_beta_cache", DataColumn: "beta_data", HasRetryCount: true}
	DownsideRiskCache          = CacheTable{Name: "downside_risk_cache", DataColumn: "downside_data", HasRetryCount: true}
	OptimizationCache          = CacheTable{Name: "optimization_cache", DataColumn: "recommendations_data", HasRetryCount: true}
)

func whereClause(keys []KeyCol) (string, []interface{}) {
	parts := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s = $%d", k.Col, i+1)
		args[i] = k.Val
	}
	return strings.Join(parts, " AND "), args
}

// GetStatus reads the current status and expires_at for a key, if a row
// exists. found is false when no record has ever been written for this
// key (the "absent" state in the cache protocol diagram).
func (s *Store) GetStatus(ctx context.Context, table CacheTable, keys []KeyCol) (status CalcStatus, expiresAt time.Time, found bool, err error) {
	where, args := whereClause(keys)
	sql := fmt.Sprintf(`SELECT calculation_status, expires_at FROM %s WHERE %s`, table.Name, where)
	row := s.conn.QueryRow(ctx, sql, args...)
	if scanErr := row.Scan(&status, &expiresAt); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, errs.Wrap(errs.DbFailure, scanErr, "get cache status").WithField("table", table.Name)
	}
	return status, expiresAt, true, nil
}

// GetFresh loads the stored payload for a key, returning found=false if
// no row exists. It does not check status or expiry -- callers that care
// about freshness should call GetStatus first (or rely on
// cachestate.CheckNeedsRefresh, which wraps both).
func (s *Store) GetFresh(ctx context.Context, table CacheTable, keys []KeyCol) (data []byte, found bool, err error) {
	where, args := whereClause(keys)
	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, table.DataColumn, table.Name, where)
	row := s.conn.QueryRow(ctx, sql, args...)
	if scanErr := row.Scan(&data); scanErr != nil {
		if scanErr == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(errs.DbFailure, scanErr, "get cache payload").WithField("table", table.Name)
	}
	return data, true, nil
}

// MarkCalculating attempts to claim the row for this worker: the upsert
// only transitions rows that are not already in calculating (or whose
// calculating claim has outlived its orphan TTL), so two racing workers
// resolve at the database -- exactly one sees claimed=true and the
// loser skips. The seeded expires_at bounds how long a crashed worker
// can hold the claim.
func (s *Store) MarkCalculating(ctx context.Context, table CacheTable, keys []KeyCol, orphanTTL time.Duration) (claimed bool, err error) {
	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		cols[i] = k.Col
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = k.Val
	}
	now := time.Now()
	args = append(args, StatusCalculating, now, now.Add(orphanTTL))
	// EXCLUDED.calculation_status is always 'calculating' here, so the
	// conflict condition reads: current row is not already claimed, or
	// the claim has expired.
	sql := fmt.Sprintf(`
		INSERT INTO %s (%s, calculation_status, calculated_at, expires_at)
		VALUES (%s, $%d, $%d, $%d)
		ON CONFLICT (%s) DO UPDATE SET
			calculation_status = EXCLUDED.calculation_status,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		WHERE %s.calculation_status <> EXCLUDED.calculation_status
		   OR %s.expires_at < now()`,
		table.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		len(keys)+1, len(keys)+2, len(keys)+3, strings.Join(cols, ", "),
		table.Name, table.Name)
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return false, errs.Wrap(errs.DbFailure, err, "mark calculating").WithField("table", table.Name)
	}
	return tag.RowsAffected() == 1, nil
}

// StoreFresh upserts the computed payload, marks the row fresh, resets
// last_error/retry_count, and sets expires_at = now + ttl.
func (s *Store) StoreFresh(ctx context.Context, table CacheTable, keys []KeyCol, data []byte, ttl time.Duration) error {
	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		cols[i] = k.Col
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = k.Val
	}
	now := time.Now()
	dataIdx := len(keys) + 1
	statusIdx := len(keys) + 2
	calcIdx := len(keys) + 3
	expIdx := len(keys) + 4
	args = append(args, data, StatusFresh, now, now.Add(ttl))

	retryReset := ""
	if table.HasRetryCount {
		retryReset = ", retry_count = 0"
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, calculation_status, calculated_at, expires_at)
		VALUES (%s, $%d, $%d, $%d, $%d)
		ON CONFLICT (%s) DO UPDATE SET
			%s = EXCLUDED.%s,
			calculation_status = EXCLUDED.calculation_status,
			calculated_at = EXCLUDED.calculated_at,
			expires_at = EXCLUDED.expires_at,
			last_error = NULL,
			updated_at = now()%s`,
		table.Name, strings.Join(cols, ", "), table.DataColumn, strings.Join(placeholders, ", "),
		dataIdx, statusIdx, calcIdx, expIdx, strings.Join(cols, ", "),
		table.DataColumn, table.DataColumn, retryReset)
	if _, err := s.conn.Exec(ctx, sql, args...); err != nil {
		return errs.Wrap(errs.DbFailure, err, "store fresh").WithField("table", table.Name)
	}
	return nil
}

// MarkError upserts status=error with a short retry-suppression TTL and,
// where the table tracks it, increments retry_count.
func (s *Store) MarkError(ctx context.Context, table CacheTable, keys []KeyCol, message string, errorTTL time.Duration) error {
	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		cols[i] = k.Col
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = k.Val
	}
	now := time.Now()
	statusIdx := len(keys) + 1
	msgIdx := len(keys) + 2
	expIdx := len(keys) + 3
	args = append(args, StatusError, message, now.Add(errorTTL))

	retryBump := ""
	retryInit := ""
	if table.HasRetryCount {
		retryBump = fmt.Sprintf(", retry_count = %s.retry_count + 1", table.Name)
		retryInit = ", retry_count"
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (%s, calculation_status, last_error, expires_at%s)
		VALUES (%s, $%d, $%d, $%d%s)
		ON CONFLICT (%s) DO UPDATE SET
			calculation_status = EXCLUDED.calculation_status,
			last_error = EXCLUDED.last_error,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()%s`,
		table.Name, strings.Join(cols, ", "), retryInit, strings.Join(placeholders, ", "),
		statusIdx, msgIdx, expIdx, condRetrySeed(table.HasRetryCount), strings.Join(cols, ", "), retryBump)
	if _, err := s.conn.Exec(ctx, sql, args...); err != nil {
		return errs.Wrap(errs.DbFailure, err, "mark error").WithField("table", table.Name)
	}
	return nil
}

func condRetrySeed(hasRetry bool) string {
	if hasRetry {
		return ", 1"
	}
	return ""
}

// Invalidate sets status=stale on every row in table keyed by
// portfolio_id, without deleting the row.
func (s *Store) Invalidate(ctx context.Context, table CacheTable, portfolioID string) error {
	sql := fmt.Sprintf(`UPDATE %s SET calculation_status = $2, updated_at = now() WHERE portfolio_id = $1`, table.Name)
	if _, err := s.conn.Exec(ctx, sql, portfolioID, StatusStale); err != nil {
		return errs.Wrap(errs.DbFailure, err, "invalidate cache").WithField("table", table.Name)
	}
	return nil
}

// InvalidateTicker sets status=stale on every row in table keyed by
// ticker, for the caches whose natural key is a symbol rather than a
// portfolio.
func (s *Store) InvalidateTicker(ctx context.Context, table CacheTable, ticker string) error {
	sql := fmt.Sprintf(`UPDATE %s SET calculation_status = $2, updated_at = now() WHERE ticker = $1`, table.Name)
	if _, err := s.conn.Exec(ctx, sql, ticker, StatusStale); err != nil {
		return errs.Wrap(errs.DbFailure, err, "invalidate cache by ticker").WithField("table", table.Name)
	}
	return nil
}

// GetHealth returns a per-status row count for table.
func (s *Store) GetHealth(ctx context.Context, table CacheTable) (HealthCounts, error) {
	sql := fmt.Sprintf(`SELECT calculation_status, count(*) FROM %s GROUP BY calculation_status`, table.Name)
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return HealthCounts{}, errs.Wrap(errs.DbFailure, err, "get health").WithField("table", table.Name)
	}
	defer rows.Close()

	counts := HealthCounts{Table: table.Name}
	for rows.Next() {
		var status CalcStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return HealthCounts{}, errs.Wrap(errs.DbFailure, err, "scan health row")
		}
		switch status {
		case StatusFresh:
			counts.Fresh = n
		case StatusCalculating:
			counts.Calculating = n
		case StatusStale:
			counts.Stale = n
		case StatusError:
			counts.Error = n
		}
	}
	return counts, rows.Err()
}

// CleanupExpired deletes rows with expires_at < now from table, returning
// the number of rows removed.
func (s *Store) CleanupExpired(ctx context.Context, table CacheTable) (int64, error) {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE expires_at < now()`, table.Name)
	tag, err := s.conn.Exec(ctx, sql)
	if err != nil {
		return 0, errs.Wrap(errs.DbFailure, err, "cleanup expired").WithField("table", table.Name)
	}
	return tag.RowsAffected(), nil
}
