package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"cinelex/internal/daemon"
	"cinelex/internal/ratelimit"
	"cinelex/internal/store"
)

type statusView struct {
	DaemonRunning bool               `json:"daemon_running"`
	LockPath      string             `json:"lock_path"`
	Store         store.Summary      `json:"store"`
	Limiters      []ratelimit.Budget `json:"limiters"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show catalog and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				summary, err := c.Store.Summary(runCtx)
				if err != nil {
					return err
				}
				view := statusView{
					DaemonRunning: daemon.DaemonRunning(c.Config),
					LockPath:      c.Config.LockPath(),
					Store:         summary,
					Limiters:      c.Budgets(),
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, view)
				}
				printStatus(cmd, view)
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, view statusView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Daemon:    %s\n", runningLabel(view.DaemonRunning))
	fmt.Fprintf(out, "Database:  %s\n", view.Store.DBPath)
	fmt.Fprintf(out, "Movies:    %d\n", view.Store.Movies)
	fmt.Fprintf(out, "Analyses:  %d\n", view.Store.Analyses)

	rows := make([][]string, 0, len(view.Store.SyncJobs)+len(view.Store.Subtitles))
	for _, status := range sortedKeys(view.Store.SyncJobs) {
		rows = append(rows, []string{"sync job", string(status), strconv.Itoa(view.Store.SyncJobs[status])})
	}
	for _, status := range sortedKeys(view.Store.Subtitles) {
		rows = append(rows, []string{"subtitle", string(status), strconv.Itoa(view.Store.Subtitles[status])})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(out, []string{"Kind", "Status", "Count"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight}))
	}
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
