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

package jobs

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/cachestate"
	"github.com/jeremycod/bcco/scheduler"
)

// cleanupCache deletes expired rows across every cache table. Rows in
// any status are removed once past expires_at; the protocol recreates
// them lazily on the next read or job tick.
func cleanupCache(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
	var result scheduler.JobResult

	for _, kind := range cachestate.AllKinds() {
		if ctx.Err() != nil {
			break
		}
		removed, err := jc.Cache.CleanupExpired(ctx, kind)
		if err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("cache cleanup failed")
			result.ItemsFailed++
			continue
		}
		log.Debug().Str("kind", string(kind)).Int64("removed", removed).Msg("cleaned expired cache rows")
		result.ItemsProcessed += int(removed)
	}
	return result, nil
}
