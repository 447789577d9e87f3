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

// PortfolioValueHistory returns the portfolio's total daily values on or
// after since, ordered by date. Values are summed across the portfolio's
// accounts per day.
func (s *Store) PortfolioValueHistory(ctx context.Context, portfolioID string, since time.Time) ([]DatedValue, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT pv.value_date, sum(pv.total_value)
		FROM portfolio_values pv
		JOIN accounts a ON a.account_id = pv.account_id
		WHERE a.portfolio_id = $1 AND pv.value_date >= $2
		GROUP BY pv.value_date
		ORDER BY pv.value_date ASC`,
		portfolioID, since)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "portfolio value history").WithField("portfolio_id", portfolioID)
	}
	defer rows.Close()

	var out []DatedValue
	for rows.Next() {
		var v DatedValue
		if err := rows.Scan(&v.Date, &v.Value); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan portfolio value")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
