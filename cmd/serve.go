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
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jeremycod/bcco/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background compute scheduler daemon",
	Long:  `Register every catalogue job on its cron schedule and run until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		runner, cfg, err := buildRunner(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("could not build scheduler")
		}

		d := daemon.New(runner, cfg)
		if err := d.Start(); err != nil {
			log.Fatal().Err(err).Msg("could not start scheduler daemon")
		}
		log.Info().Bool("test_mode", cfg.TestMode).Msg("bcco scheduler serving")

		<-ctx.Done()
		log.Info().Msg("interrupt received; draining scheduler")
		d.Stop()
	},
}
