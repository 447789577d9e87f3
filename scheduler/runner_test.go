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

package scheduler_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/scheduler"
	"github.com/jeremycod/bcco/store"
)

func newRunner(t *testing.T) (*scheduler.Runner, pgxmock.PgxConnIface) {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close(context.Background()) })

	deps := scheduler.JobContext{Store: store.New(mock), Cfg: config.Defaults()}
	return scheduler.NewRunner(deps), mock
}

func expectRunTracking(mock pgxmock.PgxConnIface) {
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO job_runs")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE job_runs")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestRegisterRejectsDuplicatesAndBadCron(t *testing.T) {
	runner, _ := newRunner(t)
	noop := func(context.Context, scheduler.JobContext) (scheduler.JobResult, error) {
		return scheduler.JobResult{}, nil
	}

	require.NoError(t, runner.Register(scheduler.Job{Name: "a", Schedule: "0 0 2 * * *", Handler: noop}))
	assert.Error(t, runner.Register(scheduler.Job{Name: "a", Schedule: "0 0 3 * * *", Handler: noop}),
		"duplicate registration must fail")
	assert.Error(t, runner.Register(scheduler.Job{Name: "b", Schedule: "not cron", Handler: noop}))
	assert.Error(t, runner.Register(scheduler.Job{Name: "c", Schedule: "0 0 2 * * *"}),
		"missing handler must fail")
}

func TestRunRecordsSuccessfulFiring(t *testing.T) {
	runner, mock := newRunner(t)
	expectRunTracking(mock)

	require.NoError(t, runner.Register(scheduler.Job{
		Name:     "touch",
		Schedule: "0 0 2 * * *",
		Handler: func(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
			assert.Equal(t, "touch", jc.JobName)
			assert.NotEmpty(t, jc.RunID)
			return scheduler.JobResult{ItemsProcessed: 3, ItemsFailed: 1}, nil
		},
	}))

	report := runner.Run(context.Background(), "touch")
	assert.Equal(t, store.JobSuccess, report.Status)
	assert.Equal(t, 3, report.ItemsProcessed)
	assert.Equal(t, 1, report.ItemsFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRecordsHandlerFailure(t *testing.T) {
	runner, mock := newRunner(t)
	expectRunTracking(mock)

	require.NoError(t, runner.Register(scheduler.Job{
		Name:     "broken",
		Schedule: "0 0 2 * * *",
		Handler: func(context.Context, scheduler.JobContext) (scheduler.JobResult, error) {
			return scheduler.JobResult{ItemsFailed: 2}, errors.New("storage offline")
		},
	}))

	report := runner.Run(context.Background(), "broken")
	assert.Equal(t, store.JobFailed, report.Status)
	assert.Equal(t, "storage offline", report.ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunUnknownJobFailsWithoutTracking(t *testing.T) {
	runner, mock := newRunner(t)
	report := runner.Run(context.Background(), "nonsense")
	assert.Equal(t, store.JobFailed, report.Status)
	assert.Equal(t, "unknown job", report.ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunEnforcesJobTimeout(t *testing.T) {
	runner, mock := newRunner(t)
	expectRunTracking(mock)

	require.NoError(t, runner.Register(scheduler.Job{
		Name:     "slow",
		Schedule: "0 0 2 * * *",
		Timeout:  20 * time.Millisecond,
		Handler: func(ctx context.Context, jc scheduler.JobContext) (scheduler.JobResult, error) {
			<-ctx.Done()
			return scheduler.JobResult{}, ctx.Err()
		},
	}))

	report := runner.Run(context.Background(), "slow")
	assert.Equal(t, store.JobFailed, report.Status)
	assert.Contains(t, report.ErrorMessage, "context deadline exceeded")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerAllRunsPipelineInOrder(t *testing.T) {
	runner, mock := newRunner(t)
	for range scheduler.TriggerAllPipeline {
		expectRunTracking(mock)
	}

	var order []string
	for _, name := range scheduler.TriggerAllPipeline {
		name := name
		require.NoError(t, runner.Register(scheduler.Job{
			Name:     name,
			Schedule: "0 0 2 * * *",
			Handler: func(context.Context, scheduler.JobContext) (scheduler.JobResult, error) {
				order = append(order, name)
				return scheduler.JobResult{ItemsProcessed: 1}, nil
			},
		}))
	}

	reports := runner.TriggerAll(context.Background())
	require.Len(t, reports, len(scheduler.TriggerAllPipeline))
	assert.Equal(t, scheduler.TriggerAllPipeline, order)
	for _, r := range reports {
		assert.Equal(t, store.JobSuccess, r.Status)
	}
}

func TestScheduleForHonoursTestMode(t *testing.T) {
	job := scheduler.Job{Schedule: "0 0 2 * * *", TestSchedule: "0 */5 * * * *"}

	cfg := config.Defaults()
	assert.Equal(t, "0 0 2 * * *", job.ScheduleFor(cfg))

	cfg.TestMode = true
	assert.Equal(t, "0 */5 * * * *", job.ScheduleFor(cfg))

	job.TestSchedule = ""
	assert.Equal(t, "0 0 2 * * *", job.ScheduleFor(cfg))
}
