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

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jeremycod/bcco/errs"
)

// StartJobRun inserts a running job_runs row and returns its id.
func (s *Store) StartJobRun(ctx context.Context, jobName string) (string, error) {
	id := uuid.NewString()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO job_runs (id, job_name, started_at, status)
		VALUES ($1, $2, now(), $3)`,
		id, jobName, JobRunning)
	if err != nil {
		return "", errs.Wrap(errs.DbFailure, err, "start job run").WithField("job_name", jobName)
	}
	return id, nil
}

// FinishJobRun records the outcome of a previously started run.
func (s *Store) FinishJobRun(ctx context.Context, id string, status JobStatus, itemsProcessed, itemsFailed int, durationMs int64, errMsg *string) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE job_runs
		SET completed_at = now(), status = $2, items_processed = $3,
		    items_failed = $4, duration_ms = $5, error_message = $6
		WHERE id = $1`,
		id, status, itemsProcessed, itemsFailed, durationMs, errMsg)
	if err != nil {
		return errs.Wrap(errs.DbFailure, err, "finish job run").WithField("job_run_id", id)
	}
	return nil
}

// JobHistory returns the most recent runs of jobName, newest first.
func (s *Store) JobHistory(ctx context.Context, jobName string, limit int) ([]JobRun, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, job_name, started_at, completed_at, status,
		       items_processed, items_failed, duration_ms, error_message
		FROM job_runs
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		jobName, limit)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "job history").WithField("job_name", jobName)
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var r JobRun
		if err := rows.Scan(&r.ID, &r.JobName, &r.StartedAt, &r.CompletedAt, &r.Status,
			&r.ItemsProcessed, &r.ItemsFailed, &r.DurationMs, &r.ErrorMessage); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan job run")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// JobRunStats aggregates the run history of one job for the admin stats
// surface: run counts by outcome plus min/max/avg duration.
type JobRunStats struct {
	JobName       string
	TotalRuns     int
	Successes     int
	Failures      int
	AvgDurationMs float64
	MinDurationMs int64
	MaxDurationMs int64
	LastRunAt     *time.Time
}

// JobStats computes aggregate run statistics for jobName.
func (s *Store) JobStats(ctx context.Context, jobName string) (JobRunStats, error) {
	stats := JobRunStats{JobName: jobName}
	row := s.conn.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'success'),
		       count(*) FILTER (WHERE status = 'failed'),
		       coalesce(avg(duration_ms), 0),
		       coalesce(min(duration_ms), 0),
		       coalesce(max(duration_ms), 0),
		       max(started_at)
		FROM job_runs WHERE job_name = $1`, jobName)
	if err := row.Scan(&stats.TotalRuns, &stats.Successes, &stats.Failures,
		&stats.AvgDurationMs, &stats.MinDurationMs, &stats.MaxDurationMs, &stats.LastRunAt); err != nil {
		return JobRunStats{}, errs.Wrap(errs.DbFailure, err, "job stats").WithField("job_name", jobName)
	}
	return stats, nil
}

// JobNames returns every job name with at least one recorded run.
func (s *Store) JobNames(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT job_name FROM job_runs ORDER BY job_name`)
	if err != nil {
		return nil, errs.Wrap(errs.DbFailure, err, "job names")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.Wrap(errs.DbFailure, err, "scan job name")
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ArchiveJobRunsOlderThan deletes job_runs rows (risk snapshots share the
// same retention policy) started before the cutoff. Returns the number
// of rows removed.
func (s *Store) ArchiveJobRunsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, `DELETE FROM job_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, errs.Wrap(errs.DbFailure, err, "archive job runs")
	}
	return tag.RowsAffected(), nil
}
