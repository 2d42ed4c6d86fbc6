package main

import (
	"io"

	"github.com/dd0wney/cluso-graphtx/pkg/config"
	"github.com/dd0wney/cluso-graphtx/pkg/graphtx"
	"github.com/dd0wney/cluso-graphtx/pkg/logging"
	"github.com/dd0wney/cluso-graphtx/pkg/metrics"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the graphtx command tree
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "graphtx",
		Short: "Transaction-scoped access to embedded graph databases.",
		Long: `graphtx opens the graph databases named in a YAML configuration and
exposes them only inside transactions.

Use "check" to validate a configuration, "inspect" to print per-database
counts and "serve" to run the health and metrics endpoints.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.PersistentFlags().StringP("config", "c", "graphtx.yaml", "Configuration file to read from.")
	rc.SetOut(stdout)
	rc.SetErr(stderr)

	rc.AddCommand(newCheckCommand(stdout, stderr))
	rc.AddCommand(newInspectCommand(stdout, stderr))
	rc.AddCommand(newServeCommand(stdout, stderr))
	return rc
}

// openModule loads the configuration named by --config and opens every
// database in it
func openModule(cmd *cobra.Command, stderr io.Writer, m *metrics.Registry) (*graphtx.Module, *config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewJSONLogger(stderr, logging.ParseLevel(cfg.LogLevel))
	module, err := graphtx.Open(cfg, graphtx.WithLogger(logger), graphtx.WithMetrics(m))
	if err != nil {
		return nil, nil, err
	}
	return module, cfg, nil
}
