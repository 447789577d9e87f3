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

// Package marketdata is the external-data adapter: a provider-agnostic
// capability interface, a per-provider token-bucket rate limiter, an
// in-process failure cache, and the refresh-on-read orchestration
// (EnsureFreshPrices) that the risk engine and jobs call before reading
// local price history.
package marketdata

import (
	"context"
	"time"
)

// Provider is the capability set the compute core depends on. Concrete
// implementations (a REST-backed pricing vendor, a local fixture for
// tests) swap freely behind this interface; nothing above it knows which
// vendor is in use.
type Provider interface {
	FetchDailyHistory(ctx context.Context, ticker string, days int) ([]DailyPrice, error)
	FetchLatest(ctx context.Context, ticker string) (DailyPrice, error)
}

// DailyPrice is one provider-returned observation, kept separate from
// store.PricePoint so marketdata doesn't force every provider
// implementation to import the store package.
type DailyPrice struct {
	Ticker string
	Date   time.Time
	Close  float64
}
