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

	"github.com/jeremycod/bcco/errs"
)

// ClearNewsCache removes cached news rows for the given tickers so the
// request tier re-fetches on next read. Returns rows removed.
func (s *Store) ClearNewsCache(ctx context.Context, tickers []string) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM news_cache WHERE ticker = ANY($1)`, tickers)
	if err != nil {
		return 0, errs.Wrap(errs.DbFailure, err, "clear news cache")
	}
	return tag.RowsAffected(), nil
}

// PruneMaterialEvents deletes material_events rows filed before the
// cutoff. Events carry their own natural uniqueness on
// (ticker, filed_at, event_type); only age-based cleanup happens here.
func (s *Store) PruneMaterialEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM material_events WHERE filed_at < $1`, cutoff)
	if err != nil {
		return 0, errs.Wrap(errs.DbFailure, err, "prune material events")
	}
	return tag.RowsAffected(), nil
}

// PruneInsiderTransactions deletes insider_transactions rows before the
// cutoff.
func (s *Store) PruneInsiderTransactions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM insider_transactions WHERE transaction_date < $1`, cutoff)
	if err != nil {
		return 0, errs.Wrap(errs.DbFailure, err, "prune insider transactions")
	}
	return tag.RowsAffected(), nil
}
