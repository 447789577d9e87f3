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

package marketdata_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/marketdata"
)

func TestFailureCacheSuppressesUntilTTL(t *testing.T) {
	fc, err := marketdata.NewFailureCache(16)
	require.NoError(t, err)

	assert.NoError(t, fc.Check("AAPL"))

	fc.Insert("AAPL", marketdata.FailureNotFound, time.Hour)
	err = fc.Check("AAPL")
	assert.Error(t, err)
	assert.True(t, errs.Is(err, errs.FailureCached))
}

func TestFailureCacheExpiredEntryIsRemovedOnRead(t *testing.T) {
	fc, err := marketdata.NewFailureCache(16)
	require.NoError(t, err)

	fc.Insert("DEADTK", marketdata.FailureInvalidTicker, time.Nanosecond)
	time.Sleep(time.Millisecond)

	assert.NoError(t, fc.Check("DEADTK"))
	assert.Equal(t, 0, fc.Len())
}

func TestFailureCacheBoundsGrowth(t *testing.T) {
	fc, err := marketdata.NewFailureCache(2)
	require.NoError(t, err)

	fc.Insert("A", marketdata.FailureNotFound, time.Hour)
	fc.Insert("B", marketdata.FailureNotFound, time.Hour)
	fc.Insert("C", marketdata.FailureNotFound, time.Hour)

	assert.Equal(t, 2, fc.Len())
	assert.NoError(t, fc.Check("A"), "oldest entry should have been evicted")
}
