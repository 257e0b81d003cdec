package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kolkov/allocprof/record"
)

func main() {
	root := &cobra.Command{
		Use:     "allocprof",
		Short:   "Inspect and export allocation recording artifacts",
		Version: record.Version,
	}

	root.AddCommand(
		newDumpCommand(),
		newExportCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
