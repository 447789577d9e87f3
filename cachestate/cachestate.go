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

// Package cachestate implements the four-state cache protocol
// (stale -> calculating -> fresh | error) that every background job and
// on-demand read coordinates through. It is the only synchronization
// primitive between producers: nothing in this module trusts an
// in-memory "is this job already running" flag.
package cachestate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jeremycod/bcco/common"
	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/store"
)

// orphanTTL bounds how long a row can sit in calculating before it is
// treated as abandoned and eligible for refresh again.
const orphanTTL = 4 * time.Hour

// Kind names one of the ten cache tables by the key config.Config.PerCacheTTL
// uses, decoupling callers from store.CacheTable plumbing.
type Kind string

const (
	KindPortfolioRisk Kind = "portfolio_risk"
	KindCorrelations  Kind = "correlations"
	KindBetaForecast  Kind = "beta_forecast"
	KindVolatility    Kind = "volatility"
	KindNarrative     Kind = "narrative"
	KindEnhancedSent  Kind = "enhanced_sentiment"
	KindScreening     Kind = "screening"
	KindRollingBeta   Kind = "rolling_beta"
	KindDownsideRisk  Kind = "downside_risk"
	KindOptimization  Kind = "optimization"
)

var tables = map[Kind]store.CacheTable{
	KindPortfolioRisk: store.PortfolioRiskCache,
	KindCorrelations:  store.PortfolioCorrelationsCache,
	KindBetaForecast:  store.BetaForecastCache,
	KindVolatility:    store.VolatilityForecastCache,
	KindNarrative:     store.PortfolioNarrativeCache,
	KindEnhancedSent:  store.EnhancedSentimentCache,
	KindScreening:     store.ScreeningCache,
	KindRollingBeta:   store.RollingBetaCache,
	KindDownsideRisk:  store.DownsideRiskCache,
	KindOptimization:  store.OptimizationCache,
}

// Manager wires the store layer to config-driven TTLs and LZ4 payload
// compression, giving each job a single entry point for the cache
// protocol's five operations.
type Manager struct {
	store *store.Store
	cfg   *config.Config
}

func New(s *store.Store, cfg *config.Config) *Manager {
	return &Manager{store: s, cfg: cfg}
}

func (m *Manager) table(kind Kind) (store.CacheTable, error) {
	t, ok := tables[kind]
	if !ok {
		return store.CacheTable{}, errs.New(errs.Validation, "unknown cache kind").WithField("kind", string(kind))
	}
	return t, nil
}

// CheckNeedsRefresh reports true iff no record exists, the record's
// status is stale or error, or its expires_at has passed. A record whose
// status is calculating reports false while its claim is live (another
// worker owns it) but true once the orphan TTL seeded by
// MarkCalculating has lapsed -- a crashed worker's claim must not wedge
// the key forever.
func (m *Manager) CheckNeedsRefresh(ctx context.Context, kind Kind, keys []store.KeyCol) (bool, error) {
	t, err := m.table(kind)
	if err != nil {
		return false, err
	}
	status, expiresAt, found, err := m.store.GetStatus(ctx, t, keys)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	switch status {
	case store.StatusCalculating:
		return time.Now().After(expiresAt), nil
	case store.StatusStale, store.StatusError:
		return true, nil
	case store.StatusFresh:
		return time.Now().After(expiresAt), nil
	default:
		return true, nil
	}
}

// MarkCalculating tries to claim the row for this worker, seeding the
// orphan TTL. claimed is false when another worker holds a live claim;
// the caller must skip the key without computing.
func (m *Manager) MarkCalculating(ctx context.Context, kind Kind, keys []store.KeyCol) (claimed bool, err error) {
	t, err := m.table(kind)
	if err != nil {
		return false, err
	}
	return m.store.MarkCalculating(ctx, t, keys, orphanTTL)
}

// StoreFresh marshals value to JSON, LZ4-compresses it, and upserts the
// row to fresh with the configured TTL for kind.
func (m *Manager) StoreFresh(ctx context.Context, kind Kind, keys []store.KeyCol, value interface{}) error {
	t, err := m.table(kind)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(errs.Validation, err, "marshal cache payload")
	}
	compressed, err := common.Compress(raw)
	if err != nil {
		return errs.Wrap(errs.DbFailure, err, "compress cache payload")
	}
	ttl := m.cfg.PerCacheTTL[string(kind)].Fresh
	return m.store.StoreFresh(ctx, t, keys, compressed, ttl)
}

// MarkError upserts the row to error with the configured error TTL for
// kind and increments retry_count where the table tracks it.
func (m *Manager) MarkError(ctx context.Context, kind Kind, keys []store.KeyCol, cause error) error {
	t, err := m.table(kind)
	if err != nil {
		return err
	}
	ttl := m.cfg.PerCacheTTL[string(kind)].Error
	if ttl == 0 {
		ttl = time.Hour
	}
	return m.store.MarkError(ctx, t, keys, cause.Error(), ttl)
}

// GetFresh loads and decompresses the stored payload into dest (a
// pointer), returning found=false if no row exists for keys. Callers
// that need a freshness guarantee should call CheckNeedsRefresh first.
func (m *Manager) GetFresh(ctx context.Context, kind Kind, keys []store.KeyCol, dest interface{}) (bool, error) {
	t, err := m.table(kind)
	if err != nil {
		return false, err
	}
	compressed, found, err := m.store.GetFresh(ctx, t, keys)
	if err != nil || !found {
		return found, err
	}
	raw, err := common.Decompress(compressed)
	if err != nil {
		return false, errs.Wrap(errs.DbFailure, err, "decompress cache payload")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, errs.Wrap(errs.DbFailure, err, "unmarshal cache payload")
	}
	return true, nil
}

// Invalidate marks every row for portfolioID across kind stale, without
// deleting it.
func (m *Manager) Invalidate(ctx context.Context, kind Kind, portfolioID string) error {
	t, err := m.table(kind)
	if err != nil {
		return err
	}
	return m.store.Invalidate(ctx, t, portfolioID)
}

// InvalidateTicker marks every row for ticker across kind stale, for the
// symbol-keyed caches (beta forecast, volatility, sentiment).
func (m *Manager) InvalidateTicker(ctx context.Context, kind Kind, ticker string) error {
	t, err := m.table(kind)
	if err != nil {
		return err
	}
	return m.store.InvalidateTicker(ctx, t, ticker)
}

// CleanupExpired deletes rows past expires_at for kind, returning the
// number removed.
func (m *Manager) CleanupExpired(ctx context.Context, kind Kind) (int64, error) {
	t, err := m.table(kind)
	if err != nil {
		return 0, err
	}
	return m.store.CleanupExpired(ctx, t)
}

// GetHealth returns per-status row counts for kind.
func (m *Manager) GetHealth(ctx context.Context, kind Kind) (store.HealthCounts, error) {
	t, err := m.table(kind)
	if err != nil {
		return store.HealthCounts{}, err
	}
	return m.store.GetHealth(ctx, t)
}

// AllKinds lists every cache kind, used by cleanup_cache and get_health
// fan-out across the full table set.
func AllKinds() []Kind {
	return []Kind{
		KindPortfolioRisk, KindCorrelations, KindBetaForecast, KindVolatility,
		KindNarrative, KindEnhancedSent, KindScreening,
		KindRollingBeta, KindDownsideRisk, KindOptimization,
	}
}
