// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Operator subcommands that open the database directly and print JSON.
// Run them against a stopped service or a copy of the data directory;
// badger holds an exclusive lock.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/CaseTrace/pkg/logging"
	"github.com/AleutianAI/CaseTrace/services/scene/config"
	"github.com/AleutianAI/CaseTrace/services/scene/models"
	"github.com/AleutianAI/CaseTrace/services/scene/replay"
	storagebadger "github.com/AleutianAI/CaseTrace/services/scene/storage/badger"
	"github.com/AleutianAI/CaseTrace/services/scene/store"
)

// openStore loads config and opens the store for a one-shot command.
// The returned cleanup closes the database.
func openStore() (*store.Store, *replay.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		Service: cfg.Service,
	})
	log := logger.Slog()

	db, err := storagebadger.Open(storagebadger.Config{
		Path:       cfg.Storage.Path,
		InMemory:   cfg.Storage.InMemory,
		SyncWrites: false,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := store.New(db, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		_ = db.Close()
		_ = logger.Close()
	}
	return st, replay.NewEngine(log), cleanup, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newReplayCmd() *cobra.Command {
	var (
		caseFlag   string
		commitFlag string
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Print the scene state replayed up to a commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := uuid.Parse(caseFlag)
			if err != nil {
				return fmt.Errorf("bad --case: %w", err)
			}
			commitID, err := uuid.Parse(commitFlag)
			if err != nil {
				return fmt.Errorf("bad --commit: %w", err)
			}
			st, engine, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			chain, err := st.GetAncestorChain(ctx, caseID, commitID)
			if err != nil {
				return err
			}
			return printJSON(engine.Replay(ctx, chain))
		},
	}
	cmd.Flags().StringVar(&caseFlag, "case", "", "case the commit belongs to")
	cmd.Flags().StringVar(&commitFlag, "commit", "", "commit ID to replay up to")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}

func newTimelineCmd() *cobra.Command {
	var (
		caseFlag   string
		limitFlag  int
		cursorFlag string
	)
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print one page of a case's commit timeline, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := uuid.Parse(caseFlag)
			if err != nil {
				return fmt.Errorf("bad --case: %w", err)
			}
			st, _, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			commits, next, err := st.ListCommitsByCase(context.Background(), caseID, limitFlag, cursorFlag)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Commits    []*models.Commit `json:"commits"`
				NextCursor string           `json:"next_cursor,omitempty"`
			}{commits, next})
		},
	}
	cmd.Flags().StringVar(&caseFlag, "case", "", "case ID")
	cmd.Flags().IntVar(&limitFlag, "limit", store.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&cursorFlag, "cursor", "", "cursor from the previous page")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func newJobsCmd() *cobra.Command {
	var caseFlag string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Print a case's jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			caseID, err := uuid.Parse(caseFlag)
			if err != nil {
				return fmt.Errorf("bad --case: %w", err)
			}
			st, _, cleanup, err := openStore()
			if err != nil {
				return err
			}
			defer cleanup()

			jobs, err := st.ListJobsByCase(context.Background(), caseID)
			if err != nil {
				return err
			}
			return printJSON(jobs)
		},
	}
	cmd.Flags().StringVar(&caseFlag, "case", "", "case ID")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}
