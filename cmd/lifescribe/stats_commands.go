package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lifescribe/internal/client"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Pipeline statistics",
	}

	statsCmd.AddCommand(newStatsOverviewCommand(ctx))
	statsCmd.AddCommand(newStatsStagesCommand(ctx))

	return statsCmd
}

func newStatsOverviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show live queue depth, failures, cost, and latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				stats, err := c.Overview(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queue depth:  %d\n", stats.QueueDepth)
				fmt.Fprintf(out, "Failures 24h: %d\n", stats.Failures24h)
				fmt.Fprintf(out, "Cost 24h:     %s\n", formatCost(stats.Cost24hUSD))
				fmt.Fprintf(out, "P95 latency:  %s\n", formatMillis(stats.P95LatencyMs))
				return nil
			})
		},
	}
}

func newStatsStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "Show per-stage daily rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.StageStats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Rollups) == 0 {
					fmt.Fprintln(out, "No rollups yet")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Date", "Stage", "OK", "Failed", "Cost", "Avg", "P95"},
					buildRollupRows(resp.Rollups),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}
