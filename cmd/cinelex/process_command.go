package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cinelex/internal/daemon"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		batchSize  int
		maxBatches int
		maxItems   int
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Analyze pending subtitles",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := daemon.ProcessRequest{BatchSize: batchSize, MaxBatches: maxBatches, MaxItems: maxItems}
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				stats, err := c.NewDriver(req.Settings(c.Config.Processing)).Run(runCtx)
				if ctx.wantJSON() {
					if jsonErr := writeJSON(cmd, stats); jsonErr != nil {
						return jsonErr
					}
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Batches:    %d\n", stats.Batches)
				fmt.Fprintf(out, "Claimed:    %d\n", stats.Claimed)
				fmt.Fprintf(out, "Processed:  %d\n", stats.Processed)
				fmt.Fprintf(out, "Failed:     %d\n", stats.Failed)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Items claimed per batch (defaults to processing.batch_size)")
	cmd.Flags().IntVar(&maxBatches, "max-batches", 0, "Stop after this many batches (0 = processing.max_batches)")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Stop after this many items (0 = processing.max_items)")
	return cmd
}
