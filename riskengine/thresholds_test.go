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

package riskengine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremycod/bcco/riskengine"
)

func TestDetectViolationsFlagsBreaches(t *testing.T) {
	beta := 2.5
	positions := []riskengine.PositionRisk{
		{
			Ticker: "AAPL",
			Weight: 1.0,
			Assessment: riskengine.RiskAssessment{
				Ticker:      "AAPL",
				Volatility:  55,
				MaxDrawdown: -60,
				Beta:        &beta,
				ValueAtRisk: -20,
				RiskScore:   90,
			},
		},
	}
	violations := riskengine.DetectViolations(positions, riskengine.DefaultThresholds())
	assert.Len(t, violations, 5)
	for _, v := range violations {
		assert.Equal(t, "AAPL", v.Ticker)
	}
}

func TestDetectViolationsNoBreaches(t *testing.T) {
	positions := []riskengine.PositionRisk{
		{
			Ticker: "AAPL",
			Weight: 1.0,
			Assessment: riskengine.RiskAssessment{
				Ticker:      "AAPL",
				Volatility:  10,
				MaxDrawdown: -5,
				ValueAtRisk: -1,
				RiskScore:   20,
			},
		},
	}
	assert.Empty(t, riskengine.DetectViolations(positions, riskengine.DefaultThresholds()))
}
