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

package cmd

import (
	"context"

	"github.com/jeremycod/bcco/cachestate"
	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/jobs"
	"github.com/jeremycod/bcco/logging"
	"github.com/jeremycod/bcco/marketdata"
	"github.com/jeremycod/bcco/riskengine"
	"github.com/jeremycod/bcco/scheduler"
	"github.com/jeremycod/bcco/store"
)

// buildRunner constructs every shared handle once and hands back a
// runner with the full catalogue registered. Every command that touches
// the scheduler goes through this single wiring point.
func buildRunner(ctx context.Context) (*scheduler.Runner, *config.Config, error) {
	logging.Setup()
	cfg := config.Load()

	s, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	failures, err := marketdata.NewFailureCache(cfg.FailureCacheSize)
	if err != nil {
		return nil, nil, err
	}
	provider := marketdata.NewRESTProvider(cfg.PricingBaseURL, cfg.ProviderCredentials["pricing"])
	limiter := marketdata.NewRateLimiter(cfg.ProviderRateCapacity, cfg.ProviderRatePerSecond)
	fetcher := marketdata.NewFetcher(s, provider, limiter, failures)

	deps := scheduler.JobContext{
		Store:  s,
		Cache:  cachestate.New(s, cfg),
		Market: fetcher,
		Risk:   riskengine.New(s, fetcher, cfg.RiskFreeRate),
		Cfg:    cfg,
	}

	runner := scheduler.NewRunner(deps)
	if err := jobs.RegisterAll(runner); err != nil {
		return nil, nil, err
	}
	return runner, cfg, nil
}
