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

package jobs_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/cachestate"
	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/jobs"
	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/scheduler"
	"github.com/jeremycod/bcco/store"
)

// stubEnsurer satisfies riskengine.PriceEnsurer without a provider.
type stubEnsurer struct{}

func (stubEnsurer) EnsureFreshPrices(context.Context, string) error { return nil }

func newJobRunner(t *testing.T) (*scheduler.Runner, pgxmock.PgxConnIface) {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close(context.Background()) })

	s := store.New(mock)
	cfg := config.Defaults()
	// No pacing in tests.
	for k := range cfg.InterPortfolioDelay {
		cfg.InterPortfolioDelay[k] = 0
	}

	deps := scheduler.JobContext{
		Store: s,
		Cache: cachestate.New(s, cfg),
		Risk:  riskengine.New(s, stubEnsurer{}, cfg.RiskFreeRate),
		Cfg:   cfg,
	}
	runner := scheduler.NewRunner(deps)
	require.NoError(t, jobs.RegisterAll(runner))
	return runner, mock
}

func TestCatalogueIsCompleteAndRegistrable(t *testing.T) {
	runner, _ := newJobRunner(t)

	catalogue := runner.Jobs()
	assert.Len(t, catalogue, 16)

	names := map[string]bool{}
	for _, job := range catalogue {
		names[job.Name] = true
	}
	for _, name := range scheduler.TriggerAllPipeline {
		assert.True(t, names[name], "pipeline job %s must be in the catalogue", name)
	}
}

// An expired fresh record walks the full protocol: needs-refresh, mark
// calculating, compute (which fails here: the portfolio has no
// holdings), mark error. The record never stays in calculating and the
// run itself succeeds with one failed item.
func TestCalculatePortfolioRisksWalksProtocolAndMarksError(t *testing.T) {
	runner, mock := newJobRunner(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_runs")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT portfolio_id FROM accounts")).
		WillReturnRows(pgxmock.NewRows([]string{"portfolio_id"}).AddRow("p1"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT calculation_status, expires_at FROM portfolio_risk_cache")).
		WillReturnRows(pgxmock.NewRows([]string{"calculation_status", "expires_at"}).
			AddRow(store.StatusFresh, time.Now().Add(-time.Second)))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO portfolio_risk_cache")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_volatility, max_drawdown, max_beta, max_risk_score, max_var")).
		WillReturnRows(pgxmock.NewRows([]string{"max_volatility", "max_drawdown", "max_beta", "max_risk_score", "max_var"}))

	mock.ExpectQuery(regexp.QuoteMeta("WITH acct AS")).
		WillReturnRows(pgxmock.NewRows([]string{"account_id", "snapshot_date", "ticker", "quantity", "market_value", "coalesce", "coalesce"}))

	// mark error after the empty-portfolio failure
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO portfolio_risk_cache")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE job_runs")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	report := runner.Run(context.Background(), "calculate_portfolio_risks")
	assert.Equal(t, store.JobSuccess, report.Status)
	assert.Equal(t, 0, report.ItemsProcessed)
	assert.Equal(t, 1, report.ItemsFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A record another worker holds in calculating is skipped without any
// write.
func TestCalculatePortfolioRisksSkipsCalculatingRecord(t *testing.T) {
	runner, mock := newJobRunner(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_runs")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT portfolio_id FROM accounts")).
		WillReturnRows(pgxmock.NewRows([]string{"portfolio_id"}).AddRow("p1"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT calculation_status, expires_at FROM portfolio_risk_cache")).
		WillReturnRows(pgxmock.NewRows([]string{"calculation_status", "expires_at"}).
			AddRow(store.StatusCalculating, time.Now().Add(4*time.Hour)))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE job_runs")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	report := runner.Run(context.Background(), "calculate_portfolio_risks")
	assert.Equal(t, store.JobSuccess, report.Status)
	assert.Equal(t, 0, report.ItemsProcessed)
	assert.Equal(t, 0, report.ItemsFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Two workers race: this one observes needs-refresh but loses the
// conditional claim (the upsert touches no row). It must skip the
// portfolio without computing and without counting a failure.
func TestCalculatePortfolioRisksSkipsWhenClaimLost(t *testing.T) {
	runner, mock := newJobRunner(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_runs")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT portfolio_id FROM accounts")).
		WillReturnRows(pgxmock.NewRows([]string{"portfolio_id"}).AddRow("p1"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT calculation_status, expires_at FROM portfolio_risk_cache")).
		WillReturnRows(pgxmock.NewRows([]string{"calculation_status", "expires_at"}).
			AddRow(store.StatusStale, time.Now().Add(time.Hour)))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO portfolio_risk_cache")).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE job_runs")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	report := runner.Run(context.Background(), "calculate_portfolio_risks")
	assert.Equal(t, store.JobSuccess, report.Status)
	assert.Equal(t, 0, report.ItemsProcessed)
	assert.Equal(t, 0, report.ItemsFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupCacheSweepsEveryTable(t *testing.T) {
	runner, mock := newJobRunner(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_runs")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for range cachestate.AllKinds() {
		mock.ExpectExec("DELETE FROM .+ WHERE expires_at < now").
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
	}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE job_runs")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	report := runner.Run(context.Background(), "cleanup_cache")
	assert.Equal(t, store.JobSuccess, report.Status)
	assert.Equal(t, 2*len(cachestate.AllKinds()), report.ItemsProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
