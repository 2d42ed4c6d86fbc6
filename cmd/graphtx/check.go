package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newCheckCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open and close every configured database.",
		Long: `
Loads the configuration, opens every database with its settings and
exception handler, then shuts them all down again. A non-zero exit means
startup would fail.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			module, _, err := openModule(cmd, stderr, nil)
			if err != nil {
				return err
			}

			names := module.Registry().Names()
			if errs := module.Shutdown(); len(errs) > 0 {
				return fmt.Errorf("shutdown: %w", errors.Join(errs...))
			}
			fmt.Fprintf(stdout, "configuration OK: %d database(s)\n", len(names))
			return nil
		},
	}
}
