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

// Package daemon owns the cron engine: it registers every catalogue job
// with its schedule on Start and drains outstanding firings on Stop.
// Run state lives entirely in job_runs and the cache tables, so a
// restarted daemon picks up exactly where the last one left off with no
// in-memory queue to lose.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/jeremycod/bcco/config"
	"github.com/jeremycod/bcco/scheduler"
)

// Daemon wraps a gocron scheduler around a job runner. Start is
// idempotent: a second call while running is a no-op, and Stop clears
// every registration so a Start after Stop can't double-schedule.
type Daemon struct {
	runner *scheduler.Runner
	cfg    *config.Config

	mu        sync.Mutex
	cron      *gocron.Scheduler
	cancelRun context.CancelFunc
	started   bool
}

func New(runner *scheduler.Runner, cfg *config.Config) *Daemon {
	return &Daemon{runner: runner, cfg: cfg}
}

// Start registers every job and starts the cron engine asynchronously.
// Schedules run against New York time, the market's reference clock.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		log.Warn().Msg("scheduler daemon already started")
		return nil
	}

	tz, err := time.LoadLocation("America/New_York")
	if err != nil {
		return err
	}
	d.cron = gocron.NewScheduler(tz)

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancelRun = cancel

	for _, job := range d.runner.Jobs() {
		name := job.Name
		expr := job.ScheduleFor(d.cfg)
		if _, err := d.cron.CronWithSeconds(expr).Do(func() {
			d.runner.Run(runCtx, name)
		}); err != nil {
			cancel()
			d.cron = nil
			return err
		}
		log.Info().Str("job_name", name).Str("schedule", expr).Bool("test_mode", d.cfg.TestMode).
			Msg("registered job")
	}

	d.cron.StartAsync()
	d.started = true
	log.Info().Int("jobs", len(d.runner.Jobs())).Msg("scheduler daemon started")
	return nil
}

// Stop signals running jobs to exit between items, waits for the cron
// engine to drain, and clears every registration.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}

	d.cancelRun()
	d.cron.Stop()
	d.cron.Clear()
	d.cron = nil
	d.started = false
	log.Info().Msg("scheduler daemon stopped")
}

// Runner exposes the underlying runner for the manual-trigger surfaces.
func (d *Daemon) Runner() *scheduler.Runner {
	return d.runner
}
