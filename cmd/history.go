package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pelusa-v/dispatchdesk/internal/config"
	"github.com/pelusa-v/dispatchdesk/internal/store"
)

func newHistoryCommand(envFile *string) *cobra.Command {
	var dbPath string

	open := func(ctx context.Context) (*store.SQLite, error) {
		cfg, err := config.Load(*envFile)
		if err != nil {
			return nil, err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		return store.Open(ctx, cfg.DBPath)
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or wipe the stored message log",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite file (overrides DISPATCHDESK_DB_PATH)")

	count := &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored public and private messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := db.CountMessages(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	var yes bool
	wipe := &cobra.Command{
		Use:   "clear",
		Short: "Delete every message, reaction and read marker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.ClearHistory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}
	wipe.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")

	cmd.AddCommand(count, wipe)
	return cmd
}
