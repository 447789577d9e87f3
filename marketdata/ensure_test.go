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

package marketdata_test

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/marketdata"
	"github.com/jeremycod/bcco/store"
)

func TestEnsureFreshPricesSkipsProviderWhenLocalDataCurrent(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	fc, err := marketdata.NewFailureCache(16)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT max(date) FROM price_points")).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(time.Now().Add(-24 * time.Hour)))

	fetcher := marketdata.NewFetcher(store.New(mock),
		marketdata.NewRESTProvider("https://pricing.test", "key"),
		marketdata.NewRateLimiter(1, 1), fc)

	// No httpmock responder is registered: any provider call would fail.
	err = fetcher.EnsureFreshPrices(context.Background(), "AAPL")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureFreshPricesShortCircuitsOnFailureCache(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	fc, err := marketdata.NewFailureCache(16)
	require.NoError(t, err)
	fc.Insert("DEADTK", marketdata.FailureNotFound, time.Hour)

	fetcher := marketdata.NewFetcher(store.New(mock),
		marketdata.NewRESTProvider("https://pricing.test", "key"),
		marketdata.NewRateLimiter(1, 1), fc)

	err = fetcher.EnsureFreshPrices(context.Background(), "DEADTK")
	assert.True(t, errs.Is(err, errs.FailureCached))
}

// Provider answers 429 twice, then succeeds. With a capacity-1 bucket
// refilling at 1 token/s the three calls must spread over at least two
// seconds, the final state is an upserted price row, and the ticker is
// not negatively memoised.
func TestEnsureFreshPricesRetriesThroughRateLimit(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	fc, err := marketdata.NewFailureCache(16)
	require.NoError(t, err)

	calls := 0
	var callTimes []time.Time
	httpmock.RegisterResponder("GET", `=~^https://pricing\.test/v1/daily/MSFT`,
		func(*http.Request) (*http.Response, error) {
			calls++
			callTimes = append(callTimes, time.Now())
			if calls <= 2 {
				return httpmock.NewStringResponse(429, "slow down"), nil
			}
			return httpmock.NewStringResponse(200,
				`{"ticker":"MSFT","prices":[{"date":"2022-06-01","close":270.25}]}`), nil
		})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT max(date) FROM price_points")).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(time.Now().Add(-30 * 24 * time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO price_points")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	fetcher := marketdata.NewFetcher(store.New(mock),
		marketdata.NewRESTProvider("https://pricing.test", "key"),
		marketdata.NewRateLimiter(1, 1), fc)

	err = fetcher.EnsureFreshPrices(context.Background(), "MSFT")
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, callTimes, 3)
	assert.GreaterOrEqual(t, callTimes[2].Sub(callTimes[0]), 2*time.Second)
	assert.NoError(t, fc.Check("MSFT"), "a recovered ticker must not be failure-cached")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureFreshPricesMemoisesHardNotFound(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	defer mock.Close(context.Background())

	fc, err := marketdata.NewFailureCache(16)
	require.NoError(t, err)

	httpmock.RegisterResponder("GET", `=~^https://pricing\.test/v1/daily/NOPE`,
		httpmock.NewStringResponder(404, "unknown ticker"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT max(date) FROM price_points")).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(time.Now().Add(-30 * 24 * time.Hour)))

	fetcher := marketdata.NewFetcher(store.New(mock),
		marketdata.NewRESTProvider("https://pricing.test", "key"),
		marketdata.NewRateLimiter(1, 1), fc)

	err = fetcher.EnsureFreshPrices(context.Background(), "NOPE")
	assert.True(t, errs.Is(err, errs.ExternalProvider))

	// The second lookup never reaches the provider.
	err = fetcher.EnsureFreshPrices(context.Background(), "NOPE")
	assert.True(t, errs.Is(err, errs.FailureCached))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
