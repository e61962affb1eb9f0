package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spacecat/sage/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		dir    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export images and captions",
		Long: `Exports the session in one of three formats:

  session  copy images plus .txt caption sidecars into a new timestamped folder
  txt      write .txt caption sidecars next to the images in the workspace
  parquet  write a (file_name, text) parquet dataset`,
		Example: `  # Copy images and captions to ~/exports/spacecat_export_<timestamp>
  sage export --dir ~/exports

  # Write a parquet dataset
  sage export --format parquet --dir ./out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			if dir == "" {
				dir = filepath.Join(a.cfg.DataDir, "exports")
			}

			switch format {
			case "session":
				path, n, err := export.Session(ctx, sess.Store(), sess.Dir(), dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d images to %s\n", n, path)
			case "txt":
				n, err := export.Sidecars(ctx, sess.Store(), sess.Dir())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d caption files to %s\n", n, sess.Dir())
			case "parquet":
				path := filepath.Join(dir, fmt.Sprintf("captions_%s.parquet", time.Now().Format("20060102_150405")))
				n, err := export.Parquet(ctx, sess.Store(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", n, path)
			default:
				return fmt.Errorf("unknown export format %q (want session, txt or parquet)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "session", "Export format: session, txt, parquet")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory (default <data dir>/exports)")
	return cmd
}
