package main

import (
	"fmt"
	"os"

	"github.com/google/pprof/profile"
	"github.com/spf13/cobra"
)

type exportParams struct {
	dataDir string
	output  string
}

// newExportCommand converts recorded artifacts into a pprof profile.
func newExportCommand() *cobra.Command {
	params := &exportParams{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded allocation sites as a pprof profile",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runExport(params)
		},
	}

	cmd.Flags().StringVar(&params.dataDir, "data-dir", "", "root directory of the recorded artifacts")
	cmd.Flags().StringVar(&params.output, "output", "allocs.pb.gz", "output profile path")
	_ = cmd.MarkFlagRequired("data-dir")

	return cmd
}

func runExport(params *exportParams) error {
	sites, err := loadSites(params.dataDir)
	if err != nil {
		return err
	}

	prof := sitesToProfile(sites)

	f, err := os.Create(params.output)
	if err != nil {
		return fmt.Errorf("creating profile output: %w", err)
	}

	err = prof.Write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}

	return nil
}

// sitesToProfile builds a pprof profile with one alloc_objects sample
// per recorded site. Locations and functions are deduplicated across
// sites; no symbolication happens here, only the recorded frame
// descriptors are rendered.
func sitesToProfile(sites []site) *profile.Profile {
	prof := &profile.Profile{
		DefaultSampleType: "alloc_objects",
		SampleType: []*profile.ValueType{
			{Type: "alloc_objects", Unit: "count"},
		},
	}

	locationMap := make(map[string]*profile.Location)
	functionMap := make(map[string]*profile.Function)
	nextLocationID := uint64(1)
	nextFunctionID := uint64(1)

	for _, s := range sites {
		if s.Events == 0 {
			continue
		}

		var locations []*profile.Location

		for _, fr := range s.Frames {
			key := fr.String()

			loc, exists := locationMap[key]
			if !exists {
				fnName := fr.Method
				if fr.DeclaringType != "" {
					fnName = fr.DeclaringType + "." + fr.Method
				}

				fn, fnExists := functionMap[fnName+"@"+fr.SourceFile]
				if !fnExists {
					fn = &profile.Function{
						ID:       nextFunctionID,
						Name:     fnName,
						Filename: fr.SourceFile,
					}
					nextFunctionID++
					functionMap[fnName+"@"+fr.SourceFile] = fn
					prof.Function = append(prof.Function, fn)
				}

				loc = &profile.Location{
					ID: nextLocationID,
					Line: []profile.Line{
						{Function: fn, Line: int64(fr.Line)},
					},
				}
				nextLocationID++
				locationMap[key] = loc
				prof.Location = append(prof.Location, loc)
			}

			locations = append(locations, loc)
		}

		prof.Sample = append(prof.Sample, &profile.Sample{
			Value:    []int64{s.Events},
			Location: locations,
			Label: map[string][]string{
				"signature": {fmt.Sprintf("%d", s.Signature)},
			},
		})
	}

	return prof
}
