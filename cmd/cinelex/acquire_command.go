package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cinelex/internal/daemon"
)

func newAcquireCommand(ctx *commandContext) *cobra.Command {
	var (
		language     string
		maxDownloads int
	)
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Download subtitles for movies that lack one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				stats, err := c.Acquire(runCtx, language, maxDownloads)
				if ctx.wantJSON() {
					if jsonErr := writeJSON(cmd, stats); jsonErr != nil {
						return jsonErr
					}
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Attempted:   %d\n", stats.Attempted)
				fmt.Fprintf(out, "Downloaded:  %d\n", stats.Successful)
				fmt.Fprintf(out, "Duplicates:  %d\n", stats.Duplicates)
				fmt.Fprintf(out, "Not found:   %d\n", stats.NoSubtitlesFound)
				fmt.Fprintf(out, "Failed:      %d\n", stats.Failed)
				if stats.QuotaExhausted {
					fmt.Fprintln(out, "Download quota exhausted; the run stopped early")
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Subtitle language (defaults to acquisition.language)")
	cmd.Flags().IntVar(&maxDownloads, "max", 0, "Maximum movies to attempt (defaults to acquisition.max_downloads)")
	return cmd
}
