package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lifescribe/internal/api"
	"lifescribe/internal/client"
	"lifescribe/internal/config"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var mediaID string
	var familyID string

	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Enqueue a media file for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspect media file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("media path %q is a directory", path)
			}

			id := strings.TrimSpace(mediaID)
			if id == "" {
				base := filepath.Base(path)
				id = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if id == "" {
				return errors.New("media id is required")
			}

			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.Enqueue(cmd.Context(), api.EnqueueRequest{
					MediaID:  id,
					FamilyID: strings.TrimSpace(familyID),
					FilePath: path,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Created) == 0 {
					fmt.Fprintf(out, "Media %s is already in flight\n", id)
					return nil
				}
				for _, job := range resp.Created {
					fmt.Fprintf(out, "Queued job %d (%s) for media %s\n", job.ID, job.Stage, job.MediaID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mediaID, "media-id", "", "Media identifier (defaults to the file name)")
	cmd.Flags().StringVar(&familyID, "family-id", "", "Owning family identifier")
	return cmd
}
