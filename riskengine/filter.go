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

import "strings"

// IsProprietaryOrFund reports whether ticker should be excluded from a
// correlation matrix: symbol length over 5, a prefix in the configured
// proprietary list, an industry description naming a mutual fund, or an
// exact hit in the mutual-fund ticker blocklist.
func IsProprietaryOrFund(ticker, industry string, proprietaryPrefixes, mutualFundBlocklist []string) bool {
	if len(ticker) > 5 {
		return true
	}
	for _, prefix := range proprietaryPrefixes {
		if strings.HasPrefix(ticker, prefix) {
			return true
		}
	}
	if strings.Contains(strings.ToLower(industry), "mutual fund") {
		return true
	}
	for _, blocked := range mutualFundBlocklist {
		if ticker == blocked {
			return true
		}
	}
	return false
}
