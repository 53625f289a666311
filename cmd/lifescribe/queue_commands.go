package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lifescribe/internal/client"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage pipeline jobs",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueOutputCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))

	return queueCmd
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var stage string
	var mediaID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.ListJobs(cmd.Context(), client.ListJobsOptions{
					Status:  strings.TrimSpace(status),
					Stage:   strings.TrimSpace(stage),
					MediaID: strings.TrimSpace(mediaID),
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				fmt.Fprintln(out, renderTable(jobColumnHeaders, buildJobRows(resp.Jobs), jobColumnAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, in_progress, completed, failed)")
	cmd.Flags().StringVar(&stage, "stage", "", "Filter by stage (upload, virus_scan, ocr, asr, index)")
	cmd.Flags().StringVar(&mediaID, "media-id", "", "Filter by media identifier")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to return")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				job := resp.Job
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d\n", job.ID)
				fmt.Fprintf(out, "  Media:    %s\n", job.MediaID)
				if job.FamilyID != "" {
					fmt.Fprintf(out, "  Family:   %s\n", job.FamilyID)
				}
				if job.FilePath != "" {
					fmt.Fprintf(out, "  File:     %s\n", job.FilePath)
				}
				fmt.Fprintf(out, "  Stage:    %s\n", job.Stage)
				fmt.Fprintf(out, "  Status:   %s\n", job.Status)
				fmt.Fprintf(out, "  Retries:  %d\n", job.RetryCount)
				if job.VendorUsed != "" {
					fmt.Fprintf(out, "  Vendor:   %s\n", job.VendorUsed)
				} else if job.VendorCandidate != "" {
					fmt.Fprintf(out, "  Vendor:   %s (candidate)\n", job.VendorCandidate)
				}
				if job.CostUSD > 0 {
					fmt.Fprintf(out, "  Cost:     %s\n", formatCost(job.CostUSD))
				}
				if job.DurationMs > 0 {
					fmt.Fprintf(out, "  Duration: %s\n", formatMillis(float64(job.DurationMs)))
				}
				if job.FailureKind != "" {
					fmt.Fprintf(out, "  Failure:  %s\n", job.FailureKind)
				}
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:    %s\n", job.ErrorMessage)
				}
				if job.ErrorDetails != "" {
					fmt.Fprintf(out, "  Details:  %s\n", job.ErrorDetails)
				}
				fmt.Fprintf(out, "  Created:  %s\n", job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				if job.CompletedAt != nil {
					fmt.Fprintf(out, "  Finished: %s\n", job.CompletedAt.Local().Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
}

func newQueueOutputCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "output <job-id>",
		Short: "Download a job's raw vendor output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(c *client.Client) error {
				data, err := c.GetJobOutput(cmd.Context(), id)
				if err != nil {
					return err
				}
				if outputPath == "" {
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}
				if err := os.WriteFile(outputPath, data, 0o644); err != nil {
					return fmt.Errorf("write output file: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(data), outputPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "Write output to a file instead of stdout")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var switchVendor string

	cmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Force a retry of a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.RetryJob(cmd.Context(), id, strings.TrimSpace(switchVendor))
				if err != nil {
					return err
				}
				job := resp.Job
				fmt.Fprintf(cmd.OutOrStdout(), "Queued retry %d (%s, attempt %d) for media %s\n",
					job.ID, job.Stage, job.RetryCount, job.MediaID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&switchVendor, "vendor", "", "Pin the retry to a specific vendor")
	return cmd
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(c *client.Client) error {
				if err := c.CancelJob(cmd.Context(), id, strings.TrimSpace(reason)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d cancelled\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Cancellation reason")
	return cmd
}
