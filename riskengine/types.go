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

// Package riskengine computes per-ticker and per-portfolio risk metrics
// on top of the timeseries primitives, and builds correlation matrices
// over the holdings that pass the proprietary/mutual-fund filter.
package riskengine

import (
	"context"
	"time"
)

// RiskLevel buckets a composite risk score for display.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// LevelForScore maps a [0,100] risk score to a RiskLevel.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 40:
		return RiskLow
	case score < 70:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// RiskAssessment is the per-ticker output of compute_risk_metrics.
type RiskAssessment struct {
	Ticker      string    `json:"ticker"`
	Benchmark   string    `json:"benchmark"`
	WindowDays  int       `json:"window_days"`
	Volatility  float64   `json:"volatility"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Beta        *float64  `json:"beta,omitempty"`
	Sharpe      *float64  `json:"sharpe,omitempty"`
	ValueAtRisk float64   `json:"value_at_risk"`
	RiskScore   float64   `json:"risk_score"`
	RiskLevel   RiskLevel `json:"risk_level"`
}

// PositionRisk pairs a portfolio position's weight with its assessment.
type PositionRisk struct {
	Ticker      string         `json:"ticker"`
	Weight      float64        `json:"weight"`
	Assessment  RiskAssessment `json:"assessment"`
}

// Severity classifies a threshold breach.
type Severity string

const (
	SeverityWarning  Severity = "Warning"
	SeverityCritical Severity = "Critical"
)

// ThresholdViolation is one breached limit for one ticker.
type ThresholdViolation struct {
	Ticker    string   `json:"ticker"`
	Metric    string   `json:"metric"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
}

// PortfolioRiskWithViolations is the aggregate risk assessment persisted
// to portfolio_risk_cache.
type PortfolioRiskWithViolations struct {
	PortfolioID  string               `json:"portfolio_id"`
	WindowDays   int                  `json:"window_days"`
	Benchmark    string               `json:"benchmark"`
	Volatility   float64              `json:"volatility"`
	MaxDrawdown  float64              `json:"max_drawdown"`
	Beta         *float64             `json:"beta,omitempty"`
	Sharpe       *float64             `json:"sharpe,omitempty"`
	ValueAtRisk  float64              `json:"value_at_risk"`
	RiskScore    float64              `json:"risk_score"`
	RiskLevel    RiskLevel            `json:"risk_level"`
	Positions    []PositionRisk       `json:"positions"`
	Violations   []ThresholdViolation `json:"violations"`
	CalculatedAt time.Time            `json:"calculated_at"`
}

// CorrelationMatrixWithStats is the output of compute_correlation_matrix.
type CorrelationMatrixWithStats struct {
	PortfolioID              string      `json:"portfolio_id"`
	WindowDays               int         `json:"window_days"`
	Tickers                  []string    `json:"tickers"`
	Matrix                   [][]float64 `json:"matrix"`
	Mean                     float64     `json:"mean"`
	Min                      float64     `json:"min"`
	Max                      float64     `json:"max"`
	HighlyCorrelatedFraction float64     `json:"highly_correlated_fraction"`
	CalculatedAt             time.Time   `json:"calculated_at"`
}

// PriceEnsurer is the capability the risk engine needs from the
// external-data adapter: make sure local price history for a ticker is
// current before reading it. Declared here, rather than importing
// marketdata directly, so riskengine depends only on the narrow slice
// of behavior it actually uses.
type PriceEnsurer interface {
	EnsureFreshPrices(ctx context.Context, ticker string) error
}
