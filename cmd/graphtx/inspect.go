package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dd0wney/cluso-graphtx/pkg/graphtx"
	"github.com/spf13/cobra"
)

func newInspectCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [database...]",
		Short: "Print node and edge counts per database.",
		Long: `
Reads every named database (all of them when none is given) inside its
own transaction and prints the node and edge counts.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, _, err := openModule(cmd, stderr, nil)
			if err != nil {
				return err
			}
			defer module.Shutdown()

			names := args
			if len(names) == 0 {
				names = module.Registry().Names()
			}

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATABASE\tNODES\tEDGES\tPATH")
			for _, name := range names {
				nodes, edges, err := counts(cmd.Context(), module, name)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", name, err)
				}
				h, _ := module.Registry().Get(name)
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", name, nodes, edges, h.Path)
			}
			return tw.Flush()
		},
	}
}

func counts(ctx context.Context, module *graphtx.Module, name string) (nodes, edges int, err error) {
	g := module.Graph()
	err = module.InDatabase(ctx, name, func(ctx context.Context) error {
		var err error
		if nodes, err = g.CountNodes(ctx); err != nil {
			return err
		}
		edges, err = g.CountEdges(ctx)
		return err
	})
	return nodes, edges, err
}
