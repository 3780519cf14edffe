package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/Chinzzii/wpvulscan/models"
)

func newRulesCmd(opts *options) *cobra.Command {
	var reload, enabledOnly bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the detection rules and their load errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.renderer()
			if err != nil {
				return err
			}
			catalog, log, err := opts.newCatalog()
			if err != nil {
				return err
			}
			defer log.Sync()

			// a fresh catalog always loads; reload only matters for a warm one
			var set map[string]models.Rule
			if enabledOnly {
				set = catalog.Enabled(reload)
			} else {
				set = catalog.Get(reload)
			}

			list := make([]models.Rule, 0, len(set))
			for _, rule := range set {
				list = append(list, rule)
			}
			sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

			return r.RenderRules(cmd.OutOrStdout(), list, catalog.LoadErrors())
		},
	}

	cmd.Flags().BoolVar(&reload, "reload", false, "force a reload of the rule files")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "list enabled rules only")

	return cmd
}
