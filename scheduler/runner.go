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

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/errs"
	"github.com/jeremycod/bcco/store"
)

// cronParser validates the 6-field (seconds-first) expression grammar
// every catalogue entry uses.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RunReport is the outcome of one firing, scheduled or manual. It
// mirrors the job_runs row just written.
type RunReport struct {
	RunID          string          `json:"job_id"`
	JobName        string          `json:"job_name"`
	Status         store.JobStatus `json:"status"`
	ItemsProcessed int             `json:"items_processed"`
	ItemsFailed    int             `json:"items_failed"`
	DurationMs     int64           `json:"duration_ms"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// Runner owns the job table and executes firings with run tracking.
// Concurrent runs of the same job are kept out by the cache state the
// handlers consult, not by any in-memory flag; the Runner itself is
// stateless across firings and safe for concurrent use once registered.
type Runner struct {
	deps JobContext
	jobs map[string]Job
}

func NewRunner(deps JobContext) *Runner {
	return &Runner{deps: deps, jobs: map[string]Job{}}
}

// Register adds a job to the table, validating its cron expressions.
// Registering the same name twice is a validation error so a restarted
// daemon can't double-schedule.
func (r *Runner) Register(job Job) error {
	if _, exists := r.jobs[job.Name]; exists {
		return errs.New(errs.Validation, "job already registered").WithField("job_name", job.Name)
	}
	if _, err := cronParser.Parse(job.Schedule); err != nil {
		return errs.Wrap(errs.Validation, err, "bad cron expression").WithField("job_name", job.Name)
	}
	if job.TestSchedule != "" {
		if _, err := cronParser.Parse(job.TestSchedule); err != nil {
			return errs.Wrap(errs.Validation, err, "bad test cron expression").WithField("job_name", job.Name)
		}
	}
	if job.Handler == nil {
		return errs.New(errs.Validation, "job has no handler").WithField("job_name", job.Name)
	}
	r.jobs[job.Name] = job
	return nil
}

// Store exposes the shared store handle for the read-only admin
// surfaces (history, stats).
func (r *Runner) Store() *store.Store {
	return r.deps.Store
}

// Jobs lists the registered catalogue, sorted by name.
func (r *Runner) Jobs() []Job {
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run fires one job: records a running job_runs row, invokes the
// handler under the job's timeout, and records the outcome. Per-item
// failures inside the handler never fail the run; only a handler error
// does. This same path backs both scheduled firings and manual
// triggers.
func (r *Runner) Run(ctx context.Context, jobName string) RunReport {
	job, ok := r.jobs[jobName]
	if !ok {
		return RunReport{
			JobName:      jobName,
			Status:       store.JobFailed,
			ErrorMessage: "unknown job",
		}
	}

	runID, err := r.deps.Store.StartJobRun(ctx, jobName)
	if err != nil {
		log.Error().Err(err).Str("job_name", jobName).Msg("could not record job start")
		return RunReport{JobName: jobName, Status: store.JobFailed, ErrorMessage: err.Error()}
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jc := r.deps
	jc.JobName = jobName
	jc.RunID = runID

	started := time.Now()
	log.Info().Str("job_name", jobName).Str("run_id", runID).Msg("job started")
	result, runErr := job.Handler(jobCtx, jc)
	durationMs := time.Since(started).Milliseconds()

	report := RunReport{
		RunID:          runID,
		JobName:        jobName,
		ItemsProcessed: result.ItemsProcessed,
		ItemsFailed:    result.ItemsFailed,
		DurationMs:     durationMs,
	}

	var errMsg *string
	if runErr != nil {
		report.Status = store.JobFailed
		msg := runErr.Error()
		errMsg = &msg
		report.ErrorMessage = msg
		log.Error().Err(runErr).Str("job_name", jobName).Str("run_id", runID).
			Int("items_processed", result.ItemsProcessed).Int("items_failed", result.ItemsFailed).
			Msg("job failed")
	} else {
		report.Status = store.JobSuccess
		log.Info().Str("job_name", jobName).Str("run_id", runID).
			Int("items_processed", result.ItemsProcessed).Int("items_failed", result.ItemsFailed).
			Int64("duration_ms", durationMs).Msg("job finished")
	}

	// The finish row is written with the parent ctx: a job that timed
	// out must still have its outcome recorded.
	if err := r.deps.Store.FinishJobRun(ctx, runID, report.Status,
		result.ItemsProcessed, result.ItemsFailed, durationMs, errMsg); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("could not record job outcome")
	}
	return report
}

// TriggerAll runs the fixed critical pipeline sequentially, each step
// tracked as its own run. A failed step is reported but does not stop
// the steps after it; only cancellation does.
func (r *Runner) TriggerAll(ctx context.Context) []RunReport {
	reports := make([]RunReport, 0, len(TriggerAllPipeline))
	for _, name := range TriggerAllPipeline {
		if ctx.Err() != nil {
			break
		}
		reports = append(reports, r.Run(ctx, name))
	}
	return reports
}
