package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spacecat/sage/internal/export"
	"github.com/spf13/cobra"
)

func newCaptionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "captions",
		Short: "Read and edit stored captions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get IMAGE",
		Short: "Print the stored caption for an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			caption, err := sess.GetCaption(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), caption)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set IMAGE CAPTION...",
		Short: "Store a caption for an image",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			return sess.SaveCaption(cmd.Context(), args[0], strings.Join(args[1:], " "))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every stored caption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			records, err := sess.GetAllCaptions(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "IMAGE\tUPDATED\tCAPTION")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ImageName, r.UpdatedAt.Local().Format("2006-01-02 15:04"), oneLine(r.Caption, 80))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import-parquet FILE",
		Short: "Load captions from a parquet dataset (file_name, text)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			n, err := export.ImportParquet(cmd.Context(), args[0], sess.Store())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d captions from %s\n", n, args[0])
			return nil
		},
	})

	return cmd
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
