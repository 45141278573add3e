// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/medmatch/medmatch/backend"
	"github.com/medmatch/medmatch/geocode"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/search"
	"github.com/medmatch/medmatch/spatial"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	req         backend.SearchRequest
	useLocation bool
	lat, lon    float64
	sort        string
	radius      float64
	filter      string
	json        bool
}

var searchOpts searchOptions

// deviceLocator reports the --lat/--lon position, then the configured one.
// Without either, location access behaves as refused.
func (o *searchOptions) deviceLocator(cmd *cobra.Command) geocode.DeviceLocator {
	if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
		return geocode.FixedLocator{Point: spatial.NewPoint(o.lat, o.lon)}
	}

	return geocode.FixedLocator{Point: cfg.device()}
}

func (o *searchOptions) locate(cmd *cobra.Command) search.Locate {
	if !o.useLocation && o.req.PostalCode == "" {
		if o.req.Location == "" {
			return nil
		}

		return func(ctx context.Context) (*spatial.Point, error) {
			res, err := cfg.resolver(ctx).Geocode(ctx, o.req.Location)
			if err != nil {
				return nil, err
			}

			return &res.Location, nil
		}
	}

	return func(ctx context.Context) (*spatial.Point, error) {
		return geocode.Origin(ctx, o.useLocation, o.deviceLocator(cmd), cfg.resolver(ctx), o.req.PostalCode)
	}
}

// radiusMiles is the --radius flag or, when not given, the account default.
func (o *searchOptions) radiusMiles(cmd *cobra.Command, client *backend.Client, sess *backend.Session) float64 {
	if cmd.Flags().Changed("radius") {
		return o.radius
	}

	s, err := client.Settings(cmd.Context(), sess)
	if err != nil {
		log.Printf("Search - using no radius, settings not available: %v", err)

		return 0
	}

	return float64(s.RadiusMiles())
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search providers and rank them",
	Long: `Searches the MedMatch backend and lists the matching providers.

Distances are measured from the device position when --use-location is set
(--lat/--lon or MEDMATCH_LAT/MEDMATCH_LON), otherwise from the postal code.
Results farther than --radius miles are hidden; without --radius the
default_radius_miles account setting applies.

$ medmatch search --zip 78701 --specialty cardiology --sort score
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o := &searchOpts
		if len(args) == 1 {
			o.req.Query = args[0]
		}

		sess, err := cfg.session()
		if err != nil {
			return err
		}

		client, err := cfg.client()
		if err != nil {
			return err
		}

		s := search.NewSession(client)

		key, err := provider.ParseSortKey(o.sort)
		if err != nil {
			log.Printf("Search - %v", err)
		}

		s.SetSort(key)
		s.SetQuery(o.filter)
		s.SetRadius(o.radiusMiles(cmd, client, sess))

		res, err := s.Resolve(cmd.Context(), sess, o.req, o.locate(cmd))
		if res == nil {
			return err
		}

		if err != nil {
			fmt.Fprintln(os.Stderr, color.YellowString("Distances unavailable: %v", err))
		}

		if err := cfg.saveLastSearch(lastSearch{ID: res.SearchID, Providers: s.Providers()}); err != nil {
			log.Printf("Search - keeping results for saved add: %v", err)
		}

		view := s.View()

		if o.json {
			return printJSON(os.Stdout, view)
		}

		printProviders(os.Stdout, view)

		summary := fmt.Sprintf("search %s: %d of %d providers shown", res.SearchID, len(view), res.Accepted)
		if len(res.Rejected) > 0 {
			summary += fmt.Sprintf(", %d malformed records skipped", len(res.Rejected))
		}

		if origin := s.Origin(); origin != nil {
			summary += fmt.Sprintf(", distances from %s", origin)
		}

		fmt.Fprintln(os.Stderr, color.New(color.Faint).Sprint(summary))

		return nil
	},
}

func validateSearchFlags(_ *cobra.Command, _ []string) error {
	if searchOpts.radius < 0 {
		return errors.New("--radius must not be negative")
	}

	if zip := strings.TrimSpace(searchOpts.req.PostalCode); zip != "" && geocode.PostalCode(zip) == "" &&
		len(zip) >= geocode.MinPostalCodeLength {
		return fmt.Errorf("--zip %q is not a US postal code", zip)
	}

	return nil
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchOpts.req.PostalCode, "zip", "", "postal code to search near and measure distances from")
	f.StringVar(&searchOpts.req.Location, "location", "", "free text location, e.g. \"Austin, TX\"")
	f.StringVar(&searchOpts.req.Specialty, "specialty", "", "provider specialty")
	f.StringVar(&searchOpts.req.Insurance, "insurance", "", "insurance plan")
	f.StringVar(&searchOpts.req.InsuranceNetwork, "insurance-network", "", "insurance network")
	f.StringVar(&searchOpts.req.InsuranceID, "insurance-id", "", "member insurance id")
	f.BoolVar(&searchOpts.useLocation, "use-location", false, "measure distances from the device position")
	f.Float64Var(&searchOpts.lat, "lat", 0, "device latitude")
	f.Float64Var(&searchOpts.lon, "lon", 0, "device longitude")
	f.StringVar(&searchOpts.sort, "sort", string(provider.SortByDistance), "sort by distance, score or name")
	f.Float64Var(&searchOpts.radius, "radius", 0, "hide providers farther than this many miles (0 shows all)")
	f.StringVar(&searchOpts.filter, "filter", "", "only show providers whose name, specialty or city contain this text")
	f.BoolVar(&searchOpts.json, "json", false, "print the results as JSON")

	searchCmd.MarkFlagsRequiredTogether("lat", "lon")
	searchCmd.PreRunE = validateSearchFlags

	rootCmd.AddCommand(searchCmd)
}
