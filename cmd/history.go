package cmd

import (
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the score history of completed scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.renderer()
			if err != nil {
				return err
			}

			a, err := opts.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.scanner.History(cmd.Context())
			if err != nil {
				return err
			}
			return r.RenderHistory(cmd.OutOrStdout(), entries)
		},
	}
}
