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

package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/store"
)

const (
	// staleAfterDays is how old the newest local price may be before a
	// provider refresh is triggered.
	staleAfterDays = 3

	// historyDays is how much history one refresh pulls; enough for a
	// 365-day risk window plus weekends/holidays padding.
	historyDays = 550

	// maxAttempts bounds the retry loop on rate-limit responses.
	maxAttempts = 3

	// failureTTL suppresses provider calls for a dead ticker.
	failureTTL = 24 * time.Hour
)

// Fetcher is the refresh-on-read orchestration over one provider: checks
// the failure cache, checks local staleness, then acquires a rate-limit
// token and pulls history, retrying rate limits with bounded backoff.
type Fetcher struct {
	store    *store.Store
	provider Provider
	limiter  *RateLimiter
	failures *FailureCache
}

func NewFetcher(s *store.Store, provider Provider, limiter *RateLimiter, failures *FailureCache) *Fetcher {
	return &Fetcher{store: s, provider: provider, limiter: limiter, failures: failures}
}

// EnsureFreshPrices makes the local price history for ticker current.
// Failure-cached tickers error out without a provider call; tickers whose
// newest local price is recent return immediately.
func (f *Fetcher) EnsureFreshPrices(ctx context.Context, ticker string) error {
	if err := f.failures.Check(ticker); err != nil {
		return err
	}

	latest, err := f.store.LatestPriceDate(ctx, ticker)
	if err != nil {
		return err
	}
	if !latest.IsZero() && time.Since(latest) < staleAfterDays*24*time.Hour {
		return nil
	}

	backoff := time.Second
	for attempt := 1; ; attempt++ {
		if err := f.limiter.Acquire(ctx); err != nil {
			return errs.Wrap(errs.RateLimited, err, "rate limiter wait cancelled").WithField("ticker", ticker)
		}

		prices, err := f.provider.FetchDailyHistory(ctx, ticker, historyDays)
		if err == nil {
			return f.upsert(ctx, ticker, prices)
		}

		switch errs.KindOf(err) {
		case errs.RateLimited:
			if attempt >= maxAttempts {
				// 429s survived every retry; memoise so the next caller
				// doesn't burn its token budget on the same wall.
				f.failures.Insert(ticker, FailureRateLimit, failureTTL)
				return errs.Wrap(errs.ExternalProvider, err, "rate limit retries exhausted").WithField("ticker", ticker)
			}
			log.Debug().Str("ticker", ticker).Int("attempt", attempt).Dur("backoff", backoff).
				Msg("provider rate limited, backing off")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return errs.Wrap(errs.RateLimited, ctx.Err(), "cancelled during rate-limit backoff").WithField("ticker", ticker)
			}
			backoff *= 2
		case errs.NotFound, errs.Validation:
			// Hard failures: the symbol doesn't exist or the provider
			// can't parse it. Memoise; retrying won't change the answer.
			f.failures.Insert(ticker, failureKindFor(err), failureTTL)
			return errs.Wrap(errs.ExternalProvider, err, "provider rejected ticker").WithField("ticker", ticker)
		default:
			// Transient I/O fault. Not memoised.
			return errs.Wrap(errs.ExternalProvider, err, "provider fetch failed").WithField("ticker", ticker)
		}
	}
}

func failureKindFor(err error) FailureKind {
	if errs.Is(err, errs.Validation) {
		return FailureInvalidTicker
	}
	return FailureNotFound
}

func (f *Fetcher) upsert(ctx context.Context, ticker string, prices []DailyPrice) error {
	points := make([]store.PricePoint, 0, len(prices))
	for _, p := range prices {
		points = append(points, store.PricePoint{Ticker: p.Ticker, Date: p.Date, Close: p.Close})
	}
	if err := f.store.UpsertPrices(ctx, points); err != nil {
		return err
	}
	log.Debug().Str("ticker", ticker).Int("rows", len(points)).Msg("refreshed price history")
	return nil
}
