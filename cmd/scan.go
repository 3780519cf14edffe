package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Chinzzii/wpvulscan/render"
)

func newScanCmd(opts *options) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a full heuristic scan of the configured site",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.renderer()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireTarget(); err != nil {
				return err
			}

			res := a.scanner.RunFullScan(ctx, scope)
			if err := r.Render(cmd.OutOrStdout(), render.FromRun(res)); err != nil {
				return err
			}
			return res.Err
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "full", "scope label stored with the scan run")
	cmd.Flags().String("target", "", "site base URL (overrides target.base_url)")
	opts.v.BindPFlag("target.base_url", cmd.Flags().Lookup("target"))

	return cmd
}
