package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cinelex/internal/daemon"
	"cinelex/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search catalog titles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				hits, err := c.Search.Search(runCtx, query)
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, hits)
				}
				out := cmd.OutOrStdout()
				if len(hits) == 0 {
					if _, strategy := search.Plan(query); strategy == search.StrategyNone {
						fmt.Fprintf(out, "Query must be at least %d characters\n", search.MinQueryLength)
						return nil
					}
					fmt.Fprintln(out, "No matches")
					return nil
				}
				rows := make([][]string, 0, len(hits))
				for _, hit := range hits {
					rows = append(rows, []string{
						strconv.FormatInt(hit.MovieID, 10),
						hit.Title,
						formatYear(hit.ReleaseYear),
						hit.Author,
						strconv.FormatFloat(hit.Popularity, 'f', 3, 64),
						strconv.FormatFloat(hit.RankScore, 'f', 4, 64),
						formatDifficulty(hit.Difficulty),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Title", "Year", "Director", "Popularity", "Score", "Difficulty"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func formatYear(year *int) string {
	if year == nil {
		return "-"
	}
	return strconv.Itoa(*year)
}

func formatDifficulty(value *float64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', 1, 64)
}
