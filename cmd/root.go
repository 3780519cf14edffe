package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Chinzzii/wpvulscan/render"
)

// options carries the settings shared by every subcommand.
type options struct {
	v       *viper.Viper
	cfgFile string
	output  string
}

// NewRootCmd builds the wpvulscan command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	opts := &options{v: viper.New()}

	root := &cobra.Command{
		Use:           "wpvulscan",
		Short:         "Heuristic security auditor for WordPress sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (json, console)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", string(render.FormatTable), "output format (table, json)")
	opts.v.BindPFlag("logger.level", root.PersistentFlags().Lookup("log-level"))
	opts.v.BindPFlag("logger.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(
		newScanCmd(opts),
		newRulesCmd(opts),
		newHistoryCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// Execute runs the root command and reports the error on stderr.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func (o *options) renderer() (render.Renderer, error) {
	switch f := render.Format(o.output); f {
	case render.FormatTable, render.FormatJSON:
		return render.New(f), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", o.output)
	}
}
