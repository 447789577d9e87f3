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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var triggerAll bool

func init() {
	triggerCmd.Flags().BoolVar(&triggerAll, "all", false, "Run the fixed critical-job pipeline in order")
	rootCmd.AddCommand(triggerCmd)
}

var triggerCmd = &cobra.Command{
	Use:   "trigger [job-name]",
	Short: "Manually run one job, or the full pipeline with --all",
	Long: `Fire a job immediately with the same run tracking as a scheduled
firing. With --all, the critical jobs run sequentially in dependency
order, each tracked as its own run.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		runner, _, err := buildRunner(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build scheduler")
		}

		if triggerAll {
			reports := runner.TriggerAll(ctx)
			printJSON(reports)
			return
		}

		if len(args) != 1 {
			log.Fatal().Msg("a job name is required unless --all is given")
		}
		report := runner.Run(ctx, args[0])
		printJSON(report)
	},
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("could not encode report")
	}
	fmt.Println(string(out))
}
