package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lifescribe/internal/client"
)

func newVendorsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "Show vendor health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.VendorStatus(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Vendors) == 0 {
					fmt.Fprintln(out, "No vendor probes recorded yet")
					return nil
				}
				rows := buildVendorRows(resp.Vendors, shouldColorize(out))
				fmt.Fprintln(out, renderTable(
					[]string{"Capability", "Vendor", "Health", "Checked", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}
