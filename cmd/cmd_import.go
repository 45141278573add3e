// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/medmatch/medmatch/geocode"
	"github.com/medmatch/medmatch/importer"
	"github.com/medmatch/medmatch/provider"
	"github.com/spf13/cobra"
)

var importOpts struct {
	maxProcs int
	geocode  bool
	out      string
}

var importCardsCmd = &cobra.Command{
	Use:   "import-cards page.html...",
	Short: "Extract provider records from saved directory pages",
	Long: `Parses provider cards from insurer directory result pages saved as HTML and
prints them as raw provider records in JSON, ready to be served by
medmatch devserver --providers.

With --geocode every address is resolved through the offline postal table,
Zippopotam and, when configured, Google Maps. Requests are rate limited by
MEDMATCH_GEOCODE_RATE (per second).
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := &importer.Options{MaxProcs: importOpts.maxProcs}
		if importOpts.geocode {
			opts.Geocoder = cfg.resolver(cmd.Context())
		}

		im := importer.New(opts)

		records, err := im.Import(cmd.Context(), args)
		if err != nil {
			return err
		}

		if importOpts.geocode {
			_, rejected := provider.NormalizeAll(records)
			if len(rejected) > 0 {
				fmt.Fprintf(os.Stderr, "%d of %d records have no coordinates and will be skipped by searches\n",
					len(rejected), len(records))
			}
		}

		var w io.Writer = os.Stdout

		if importOpts.out != "" {
			f, err := os.Create(importOpts.out)
			if err != nil {
				return err
			}
			defer f.Close()

			w = f
		}

		return printJSON(w, records)
	},
}

// geocodeCmd resolves free text queries, one per line.
var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve locations, one per line",
	RunE: func(cmd *cobra.Command, _ []string) error {
		r := cfg.resolver(cmd.Context())

		return eachLine("Enter postal codes or addresses, one per line…", func(line string) (any, error) {
			res, err := r.Geocode(cmd.Context(), line)
			if err != nil {
				return nil, err
			}

			return struct {
				*geocode.Result
				Location string
			}{res, res.Location.String()}, nil
		})
	},
}

func init() {
	f := importCardsCmd.Flags()
	f.IntVar(&importOpts.maxProcs, "max-procs", 0, "concurrent geocoding requests (default NumCPU)")
	f.BoolVar(&importOpts.geocode, "geocode", false, "geocode card addresses")
	f.StringVarP(&importOpts.out, "out", "o", "", "write the records to this file instead of stdout")

	rootCmd.AddCommand(importCardsCmd)
	debugCmd.AddCommand(geocodeCmd)
}
