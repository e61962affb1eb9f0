package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spacecat/sage/internal/ingest"
	"github.com/spf13/cobra"
)

func newIngestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Import images into the session workspace",
		Long: `Copies images (.jpg, .jpeg, .png, .gif) into the session workspace.

Directories are walked recursively. A .txt file with the same base name as an
image is imported as that image's caption. http(s) URLs are downloaded first.`,
		Example: `  # Import a folder of images with their sidecar captions
  sage ingest ~/datasets/cats

  # Import individual files and a remote image
  sage ingest a.jpg b.png https://example.com/c.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			var paths, urls []string
			for _, arg := range args {
				if ingest.IsURL(arg) {
					urls = append(urls, arg)
				} else {
					paths = append(paths, arg)
				}
			}
			if len(urls) > 0 {
				staging, err := os.MkdirTemp("", "sage-download-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(staging)

				fetched, err := ingest.NewFetcher().Fetch(ctx, urls, staging)
				if err != nil {
					return err
				}
				paths = append(paths, fetched...)
			}

			if _, err := sess.SubmitFiles(paths); err != nil {
				return err
			}

			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			last := -1
		wait:
			for {
				select {
				case <-ctx.Done():
					sess.StopIngestion()
					break wait
				case <-ticker.C:
				}
				progress := sess.PollIngestion()
				if !progress.Complete {
					if progress.Percent != last {
						fmt.Fprintf(cmd.ErrOrStderr(), "\rImporting... %3d%%", progress.Percent)
						last = progress.Percent
					}
					continue
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "\rImporting... %3d%%\n", progress.Percent)

				captioned := 0
				for _, f := range progress.Files {
					mark := " "
					if f.HasCaption {
						mark = "*"
						captioned++
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %-40s %10d bytes\n", mark, f.Name, f.SizeBytes)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nImported %d images (%d with captions) into %s\n", len(progress.Files), captioned, sess.Dir())
				return nil
			}

			progress := sess.PollIngestion()
			fmt.Fprintf(cmd.OutOrStdout(), "\nImport interrupted after %d images\n", len(progress.Files))
			return ctx.Err()
		},
	}

	return cmd
}
