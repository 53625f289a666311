package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"lifescribe/internal/client"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				status, err := c.Status(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Running:   %s\n", yesNo(status.Running))
				fmt.Fprintf(out, "Database:  %s\n", status.QueueDBPath)
				fmt.Fprintf(out, "Lock file: %s\n", status.LockFilePath)
				if len(status.JobCounts) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}

				statuses := make([]string, 0, len(status.JobCounts))
				for name := range status.JobCounts {
					statuses = append(statuses, name)
				}
				sort.Strings(statuses)
				rows := make([][]string, 0, len(statuses))
				for _, name := range statuses {
					rows = append(rows, []string{name, fmt.Sprint(status.JobCounts[name])})
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
