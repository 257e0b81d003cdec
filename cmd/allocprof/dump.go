package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type dumpParams struct {
	dataDir    string
	withTraces bool
}

// newDumpCommand reports the recorded allocation sites as text.
func newDumpCommand() *cobra.Command {
	params := &dumpParams{}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print recorded allocation sites and their event counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDump(cmd, params)
		},
	}

	cmd.Flags().StringVar(&params.dataDir, "data-dir", "", "root directory of the recorded artifacts")
	cmd.Flags().BoolVar(&params.withTraces, "traces", false, "print the full frame sequence per site")
	_ = cmd.MarkFlagRequired("data-dir")

	return cmd
}

func runDump(cmd *cobra.Command, params *dumpParams) error {
	sites, err := loadSites(params.dataDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	var total int64
	for _, s := range sites {
		total += s.Events
	}

	fmt.Fprintf(out, "%d allocation sites, %d events\n\n", len(sites), total)

	for _, s := range sites {
		top := "<no trace recorded>"
		if len(s.Frames) > 0 {
			top = s.Frames[0].String()
		}

		fmt.Fprintf(out, "%10d  %10d  %s\n", s.Signature, s.Events, top)

		if params.withTraces {
			for _, f := range s.Frames {
				fmt.Fprintf(out, "%24s%s\n", "", f.String())
			}
		}
	}

	return nil
}
