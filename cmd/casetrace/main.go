// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// casetrace is the scene reconstruction service: an append-only commit
// log per case, replay-derived scene state, hypothesis branches, and a
// typed job queue feeding reconstruction workers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "casetrace",
		Short: "Crime scene reconstruction service",
		Long: "casetrace maintains an immutable per-case commit timeline, " +
			"derives scene state by replay, and runs the job queue that feeds " +
			"reconstruction, reasoning, profile and export workers.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newTimelineCmd())
	root.AddCommand(newJobsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
