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

package cachestate_test

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
	"github.com/jeremycod/bcco/store"
)

func TestCheckNeedsRefreshNoRowMeansTrue(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mgr := cachestate.New(store.New(mock), config.Defaults())
	keys := []store.KeyCol{{Col: "portfolio_id", Val: "p1"}, {Col: "days", Val: 90}, {Col: "benchmark", Val: "SPY"}}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT calculation_status, expires_at FROM portfolio_risk_cache")).
		WillReturnRows(pgxmock.NewRows([]string{"calculation_status", "expires_at"}))

	needsRefresh, err := mgr.CheckNeedsRefresh(context.Background(), cachestate.KindPortfolioRisk, keys)
	assert.NoError(t, err)
	assert.True(t, needsRefresh)
}

func TestCheckNeedsRefreshCalculatingBlocksSecondWorker(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mgr := cachestate.New(store.New(mock), config.Defaults())
	keys := []store.KeyCol{{Col: "portfolio_id", Val: "p1"}, {Col: "days", Val: 90}, {Col: "benchmark", Val: "SPY"}}

	rows := pgxmock.NewRows([]string{"calculation_status", "expires_at"}).
		AddRow(store.StatusCalculating, time.Now().Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT calculation_status, expires_at FROM portfolio_risk_cache")).
		WillReturnRows(rows)

	needsRefresh, err := mgr.CheckNeedsRefresh(context.Background(), cachestate.KindPortfolioRisk, keys)
	assert.NoError(t, err)
	assert.False(t, needsRefresh)
}

// A calculating row whose orphan TTL has lapsed belongs to a crashed
// worker and must become refreshable again.
func TestCheckNeedsRefreshReclaimsOrphanedCalculating(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mgr := cachestate.New(store.New(mock), config.Defaults())
	keys := []store.KeyCol{{Col: "portfolio_id", Val: "p1"}, {Col: "days", Val: 90}, {Col: "benchmark", Val: "SPY"}}

	rows := pgxmock.NewRows([]string{"calculation_status", "expires_at"}).
		AddRow(store.StatusCalculating, time.Now().Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT calculation_status, expires_at FROM portfolio_risk_cache")).
		WillReturnRows(rows)

	needsRefresh, err := mgr.CheckNeedsRefresh(context.Background(), cachestate.KindPortfolioRisk, keys)
	assert.NoError(t, err)
	assert.True(t, needsRefresh)
}

func TestCheckNeedsRefreshFreshButExpired(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mgr := cachestate.New(store.New(mock), config.Defaults())
	keys := []store.KeyCol{{Col: "portfolio_id", Val: "p1"}, {Col: "days", Val: 90}, {Col: "benchmark", Val: "SPY"}}

	rows := pgxmock.NewRows([]string{"calculation_status", "expires_at"}).
		AddRow(store.StatusFresh, time.Now().Add(-time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT calculation_status, expires_at FROM portfolio_risk_cache")).
		WillReturnRows(rows)

	needsRefresh, err := mgr.CheckNeedsRefresh(context.Background(), cachestate.KindPortfolioRisk, keys)
	assert.NoError(t, err)
	assert.True(t, needsRefresh)
}

func TestStoreFreshRoundTripsPayload(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mgr := cachestate.New(store.New(mock), config.Defaults())
	keys := []store.KeyCol{{Col: "portfolio_id", Val: "p1"}, {Col: "days", Val: 90}, {Col: "benchmark", Val: "SPY"}}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO portfolio_risk_cache")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	type payload struct {
		RiskScore float64 `json:"risk_score"`
	}
	err = mgr.StoreFresh(context.Background(), cachestate.KindPortfolioRisk, keys, payload{RiskScore: 42.5})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkErrorUnknownKindIsValidationError(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	mgr := cachestate.New(store.New(mock), config.Defaults())
	err = mgr.MarkError(context.Background(), cachestate.Kind("nonsense"), nil, assert.AnError)
	assert.Error(t, err)
}
