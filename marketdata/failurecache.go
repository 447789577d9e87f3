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
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/jeremycod/bcco/errs"
)

// FailureKind names why a ticker was negatively memoised.
type FailureKind string

const (
	FailureNotFound      FailureKind = "not_found"
	FailureInvalidTicker FailureKind = "invalid_ticker"
	FailureRateLimit     FailureKind = "rate_limit_exhausted"
)

type failureEntry struct {
	kind       FailureKind
	insertedAt time.Time
	ttl        time.Duration
}

// FailureCache memoises hard provider failures per ticker so repeated
// lookups for a dead symbol never reach the provider before the entry's
// TTL expires. Transient I/O errors are never inserted. Backed by a
// bounded LRU so one-off garbage tickers can't grow it without limit.
type FailureCache struct {
	entries *lru.Cache
}

// NewFailureCache builds a cache bounded to size entries.
func NewFailureCache(size int) (*FailureCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &FailureCache{entries: entries}, nil
}

// Insert records a hard failure for ticker, suppressing provider calls
// until ttl elapses.
func (f *FailureCache) Insert(ticker string, kind FailureKind, ttl time.Duration) {
	f.entries.Add(ticker, failureEntry{kind: kind, insertedAt: time.Now(), ttl: ttl})
}

// Check returns a FailureCached error when ticker has an unexpired
// negative entry, and nil otherwise. Expired entries are removed on read.
func (f *FailureCache) Check(ticker string) error {
	v, ok := f.entries.Get(ticker)
	if !ok {
		return nil
	}
	entry := v.(failureEntry)
	if time.Since(entry.insertedAt) > entry.ttl {
		f.entries.Remove(ticker)
		return nil
	}
	return errs.New(errs.FailureCached, "ticker in failure cache").
		WithField("ticker", ticker).WithField("kind", string(entry.kind))
}

// Len reports how many negative entries are currently held, expired or not.
func (f *FailureCache) Len() int {
	return f.entries.Len()
}
