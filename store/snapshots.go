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

// SaveRiskSnapshot persists the end-of-day risk record for a portfolio,
// one row per (portfolio_id, snapshot_date). data is the serialised
// portfolio risk payload, shared with the cache tables' encoding.
func (s *Store) SaveRiskSnapshot(ctx context.Context, portfolioID string, snapshotDate time.Time, data []byte) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO risk_snapshots (portfolio_id, snapshot_date, risk_data, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (portfolio_id, snapshot_date) DO UPDATE SET
			risk_data = EXCLUDED.risk_data`,
		portfolioID, snapshotDate, data)
	if err != nil {
		return errs.Wrap(errs.DbFailure, err, "save risk snapshot").WithField("portfolio_id", portfolioID)
	}
	return nil
}

// ArchiveRiskSnapshotsOlderThan deletes snapshots before the cutoff
// (retention is one year) and returns the number removed.
func (s *Store) ArchiveRiskSnapshotsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM risk_snapshots WHERE snapshot_date < $1`, cutoff)
	if err != nil {
		return 0, errs.Wrap(errs.DbFailure, err, "archive risk snapshots")
	}
	return tag.RowsAffected(), nil
}
