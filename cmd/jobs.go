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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	jobsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show")
	jobsCmd.AddCommand(jobsListCmd, jobsHistoryCmd, jobsStatsCmd)
	rootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the job catalogue and run history",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered job and its schedules",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		runner, cfg, err := buildRunner(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build scheduler")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tSCHEDULE\tTEST SCHEDULE")
		for _, job := range runner.Jobs() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", job.Name, job.Schedule, job.TestSchedule)
		}
		w.Flush()
		if cfg.TestMode {
			fmt.Println("\ntest mode is active: the TEST SCHEDULE column is live")
		}
	},
}

var jobsHistoryCmd = &cobra.Command{
	Use:   "history <job-name>",
	Short: "Show the most recent runs of a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		runner, _, err := buildRunner(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build scheduler")
		}

		runs, err := runner.Store().JobHistory(ctx, args[0], historyLimit)
		if err != nil {
			log.Fatal().Err(err).Msg("could not load job history")
		}
		printJSON(runs)
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats <job-name>",
	Short: "Show aggregate run statistics for a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		runner, _, err := buildRunner(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build scheduler")
		}

		stats, err := runner.Store().JobStats(ctx, args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("could not load job stats")
		}
		printJSON(stats)
	},
}
