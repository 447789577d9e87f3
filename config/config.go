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

// Package config gathers every tunable the compute core reads from the
// environment or a config file into a single typed struct. This replaces
// the ambient globals (demo user ids, env-read risk-free rates, hard-coded
// ticker blocklists) that the source implementation scattered across
// modules: everything here is loaded once and threaded through
// scheduler.JobContext.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TTL holds the fresh/error TTLs for one cache table.
type TTL struct {
	Fresh time.Duration
	Error time.Duration
}

// Config is the single source of truth for every tunable the compute
// core reads.
type Config struct {
	// RiskFreeRate is the annualised risk-free rate used in Sharpe and
	// Sortino calculations. Configurable via RISK_FREE_RATE, default 0.045.
	RiskFreeRate float64

	// TestMode swaps the production cron table for a denser staging
	// cadence. Configurable via JOB_SCHEDULER_TEST_MODE.
	TestMode bool

	// InterPortfolioDelay is the pacing delay jobs sleep between
	// portfolios/tickers to avoid overwhelming storage and providers.
	InterPortfolioDelay map[string]time.Duration

	// PerCacheTTL holds the fresh/error TTL overrides, keyed by cache name
	// ("portfolio_risk", "correlations", "beta_forecast", "volatility",
	// "narrative", "enhanced_sentiment", "screening").
	PerCacheTTL map[string]TTL

	// MutualFundBlocklist and ProprietaryPrefixList drive the
	// correlation-matrix ticker filter; kept as data instead of inline
	// literals.
	MutualFundBlocklist   []string
	ProprietaryPrefixList []string

	// CorrelationMaxPositions bounds how many tickers by market value are
	// kept when building a correlation matrix.
	CorrelationMaxPositions int

	// PortfolioTimeout bounds a single portfolio's compute inside a job.
	PortfolioTimeout time.Duration

	// ProviderCredentials holds opaque strings read from the environment
	// for the pricing/news/filings providers.
	ProviderCredentials map[string]string

	// PricingBaseURL is the pricing provider's endpoint.
	PricingBaseURL string

	// ProviderRateCapacity / ProviderRatePerSecond size the per-provider
	// token bucket.
	ProviderRateCapacity  int
	ProviderRatePerSecond float64

	// FailureCacheSize bounds the in-memory negative-result cache.
	FailureCacheSize int

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string
}

// defaultTTLs holds the per-cache freshness and retry-suppression
// windows applied when no override is configured.
func defaultTTLs() map[string]TTL {
	return map[string]TTL{
		"portfolio_risk":     {Fresh: 4 * time.Hour, Error: time.Hour},
		"correlations":       {Fresh: 24 * time.Hour, Error: time.Hour},
		"beta_forecast":      {Fresh: 24 * time.Hour, Error: time.Hour},
		"volatility":         {Fresh: 24 * time.Hour, Error: time.Hour},
		"narrative":          {Fresh: 24 * time.Hour},
		"enhanced_sentiment": {Fresh: 12 * time.Hour, Error: time.Hour},
		"screening":          {Fresh: 15 * time.Minute},
		"rolling_beta":       {Fresh: 6 * time.Hour, Error: time.Hour},
		"downside_risk":      {Fresh: 6 * time.Hour, Error: time.Hour},
		"optimization":       {Fresh: 6 * time.Hour, Error: time.Hour},
	}
}

func defaultInterItemDelays() map[string]time.Duration {
	return map[string]time.Duration{
		"risk":         time.Second,
		"correlations": 2 * time.Second,
		"news":         200 * time.Millisecond,
		"prices":       500 * time.Millisecond,
	}
}

// Defaults returns a Config populated with the documented defaults,
// before any viper overrides are applied.
func Defaults() *Config {
	return &Config{
		RiskFreeRate:            0.045,
		TestMode:                false,
		InterPortfolioDelay:     defaultInterItemDelays(),
		PerCacheTTL:             defaultTTLs(),
		MutualFundBlocklist:     []string{"FIDXYZ"},
		ProprietaryPrefixList:   []string{"PV", "PROP"},
		CorrelationMaxPositions: 10,
		PortfolioTimeout:        60 * time.Second,
		ProviderCredentials:     map[string]string{},
		PricingBaseURL:          "https://api.tiingo.com",
		ProviderRateCapacity:    5,
		ProviderRatePerSecond:   1,
		FailureCacheSize:        512,
	}
}

// BindFlags registers the environment bindings the daemon reads at
// startup.
func BindFlags() {
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("risk_free_rate", "RISK_FREE_RATE")
	viper.BindEnv("scheduler.test_mode", "JOB_SCHEDULER_TEST_MODE")
	viper.BindEnv("log.level", "BCCO_LOG_LEVEL")
	viper.BindEnv("log.output", "BCCO_LOG_OUTPUT")
	viper.BindEnv("log.pretty", "BCCO_LOG_PRETTY")
	viper.BindEnv("log.report_caller", "BCCO_LOG_REPORT_CALLER")
	viper.BindEnv("provider.pricing_url", "PRICING_PROVIDER_URL")
	viper.BindEnv("provider.pricing_key", "PRICING_PROVIDER_KEY")
	viper.BindEnv("provider.news_key", "NEWS_PROVIDER_KEY")
	viper.BindEnv("provider.filings_key", "FILINGS_PROVIDER_KEY")
}

// Load merges viper-sourced overrides onto the documented defaults.
func Load() *Config {
	cfg := Defaults()

	if viper.IsSet("risk_free_rate") {
		cfg.RiskFreeRate = viper.GetFloat64("risk_free_rate")
	}
	cfg.TestMode = viper.GetBool("scheduler.test_mode")
	cfg.DatabaseURL = viper.GetString("database.url")

	if url := viper.GetString("provider.pricing_url"); url != "" {
		cfg.PricingBaseURL = url
	}

	for _, name := range []string{"pricing", "news", "filings"} {
		key := viper.GetString("provider." + name + "_key")
		if key != "" {
			cfg.ProviderCredentials[name] = key
		}
	}

	if ttlOverrides := viper.GetStringMap("cache_ttl"); len(ttlOverrides) > 0 {
		for name, raw := range ttlOverrides {
			lname := strings.ToLower(name)
			if m, ok := raw.(map[string]any); ok {
				ttl := cfg.PerCacheTTL[lname]
				if v, ok := m["fresh_seconds"]; ok {
					if secs, ok := toInt(v); ok {
						ttl.Fresh = time.Duration(secs) * time.Second
					}
				}
				if v, ok := m["error_seconds"]; ok {
					if secs, ok := toInt(v); ok {
						ttl.Error = time.Duration(secs) * time.Second
					}
				}
				cfg.PerCacheTTL[lname] = ttl
			}
		}
	}

	return cfg
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
