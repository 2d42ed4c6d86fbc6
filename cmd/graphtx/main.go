// Command graphtx checks, inspects and serves the configured graph databases.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	cmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
