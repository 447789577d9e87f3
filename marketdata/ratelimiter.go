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

package marketdata

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a single token bucket shared by every caller of one
// provider. golang.org/x/time/rate already serializes concurrent Wait
// calls internally, so this is a thin named wrapper rather than a
// reimplementation.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a bucket of the given burst capacity that
// refills at refillPerSecond tokens/second.
func NewRateLimiter(capacity int, refillPerSecond float64) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(refillPerSecond), capacity)}
}

// Acquire blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
