package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/parley/pkg/audit"
	"github.com/pario-ai/parley/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the masked prompt/response audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath     string
		conversationID string
		since          string
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openAuditStore(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				ConversationID: conversationID,
				Limit:          limit,
			}
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			records, err := s.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), audit.FormatRecords(records))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to parley config file")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "filter by conversation ID")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <audit-id>",
		Short: "Show a single audit record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openAuditStore(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := s.Query(cmd.Context(), models.AuditQueryOpts{ID: args[0], Limit: 1})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No record found for that audit ID.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), audit.FormatRecord(records[0]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to parley config file")
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit record counts per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := openAuditStore(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := s.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), audit.FormatStats(stats))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to parley config file")
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var (
		configPath string
		olderThan  time.Duration
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit records older than --older-than",
		Long: "Delete audit records older than --older-than. This is the only way " +
			"audit records are ever removed; the server never deletes them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			if !yes {
				return fmt.Errorf("refusing to delete audit records without --yes")
			}

			s, cleanup, err := openAuditStore(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := s.Cleanup(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit records.\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to parley config file")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum age of records to delete (e.g. 2160h)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	return cmd
}

func openAuditStore(ctx context.Context, configPath string) (audit.Store, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	s, err := audit.NewStore(ctx, cfg.Audit.Driver, cfg.Audit.DBPath, cfg.Audit.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit store: %w", err)
	}
	return s, func() { _ = s.Close() }, nil
}
