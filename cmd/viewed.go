package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newViewedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viewed",
		Short: "Track which images have been reviewed",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mark IMAGE...",
		Short: "Mark images as viewed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			for _, name := range args {
				if err := sess.MarkViewed(cmd.Context(), name); err != nil {
					return err
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unmark IMAGE...",
		Short: "Clear the viewed mark on images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			for _, name := range args {
				if err := sess.UnmarkViewed(cmd.Context(), name); err != nil {
					return err
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List viewed images, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.Close()

			marks, err := sess.ListViewed(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range marks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", m.ViewedAt.Local().Format("2006-01-02 15:04:05"), m.ImageName)
			}
			return nil
		},
	})

	return cmd
}
