package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/agent"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/aggregator"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/handler"
)

func newRecordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "record <item-id>...",
		Short: "Record a view for each item",
		Long: `Record a view for each item ID. Items already viewed today are skipped.
Views stay queued in the local store until the next flush.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withAgent(cmd.Context(), func(a *agent.Agent) error {
				for _, id := range args {
					a.Aggregator.RecordView(cmd.Context(), id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %d view(s)\n", len(args))
				return nil
			})
		},
	}
}

func newFlushCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send pending views to the remote backend now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withAgent(cmd.Context(), func(a *agent.Agent) error {
				err := a.Aggregator.Flush(cmd.Context())
				if errors.Is(err, aggregator.ErrFlushInProgress) {
					fmt.Fprintln(cmd.OutOrStdout(), "flush already in progress")
					return nil
				}
				if err != nil {
					return fmt.Errorf("flush: %w", err)
				}

				pending, err := a.Aggregator.Pending(cmd.Context())
				if err != nil {
					return fmt.Errorf("read pending views: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "flushed, %d view(s) still pending\n", len(pending))
				return nil
			})
		},
	}
}

func newPendingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Print queued views as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withAgent(cmd.Context(), func(a *agent.Agent) error {
				pending, err := a.Aggregator.Pending(cmd.Context())
				if err != nil {
					return fmt.Errorf("read pending views: %w", err)
				}
				last, err := a.Aggregator.LastFlushAt(cmd.Context())
				if err != nil {
					return fmt.Errorf("read last flush: %w", err)
				}

				out := handler.PendingResponse{Count: len(pending), Pending: pending}
				if out.Pending == nil {
					out.Pending = []domain.ViewEvent{}
				}
				if !last.IsZero() {
					out.LastFlushAt = &last
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
}
