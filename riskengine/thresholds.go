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

package riskengine

import "math"

// Thresholds bounds the per-position metrics that, once exceeded,
// generate a ThresholdViolation. Each default sits below the matching
// cap of the composite score (volatility 50, drawdown 50, beta 2.0,
// VaR 10); a Critical breach is set at 1.5x the Warning threshold.
type Thresholds struct {
	MaxVolatility float64
	MaxDrawdown   float64 // stored as a positive magnitude
	MaxBeta       float64
	MaxRiskScore  float64
	MaxVaR        float64 // stored as a positive magnitude
}

// DefaultThresholds returns the documented defaults used when a
// portfolio has no threshold settings of its own.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxVolatility: 40,
		MaxDrawdown:   35,
		MaxBeta:       1.5,
		MaxRiskScore:  70,
		MaxVaR:        8,
	}
}

// DetectViolations evaluates each position against thresholds across
// volatility, drawdown, beta, risk-score and VaR, read-only -- it never
// mutates cache state or store data. This backs the check_thresholds
// job.
func DetectViolations(positions []PositionRisk, thresholds Thresholds) []ThresholdViolation {
	var out []ThresholdViolation
	for _, p := range positions {
		a := p.Assessment
		if a.Volatility > thresholds.MaxVolatility {
			out = append(out, violation(a.Ticker, "volatility", a.Volatility, thresholds.MaxVolatility))
		}
		if math.Abs(a.MaxDrawdown) > thresholds.MaxDrawdown {
			out = append(out, violation(a.Ticker, "max_drawdown", math.Abs(a.MaxDrawdown), thresholds.MaxDrawdown))
		}
		if a.Beta != nil && math.Abs(*a.Beta) > thresholds.MaxBeta {
			out = append(out, violation(a.Ticker, "beta", math.Abs(*a.Beta), thresholds.MaxBeta))
		}
		if a.RiskScore > thresholds.MaxRiskScore {
			out = append(out, violation(a.Ticker, "risk_score", a.RiskScore, thresholds.MaxRiskScore))
		}
		if math.Abs(a.ValueAtRisk) > thresholds.MaxVaR {
			out = append(out, violation(a.Ticker, "value_at_risk", math.Abs(a.ValueAtRisk), thresholds.MaxVaR))
		}
	}
	return out
}

func violation(ticker, metric string, value, threshold float64) ThresholdViolation {
	severity := SeverityWarning
	if value > threshold*1.5 {
		severity = SeverityCritical
	}
	return ThresholdViolation{Ticker: ticker, Metric: metric, Value: value, Threshold: threshold, Severity: severity}
}
