// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/fatih/color"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/settings"
	"github.com/medmatch/medmatch/spatial"
	"github.com/spf13/cobra"
)

var (
	savedJSON   bool
	nearZip     string
	nearLat     float64
	nearLon     float64
	nearRadius  float64
	savedSortBy string
)

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Manage providers saved from search results",
}

var savedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved providers, newest first",
	RunE: func(_ *cobra.Command, _ []string) error {
		repo, closeDB, err := cfg.openSaved()
		if err != nil {
			return err
		}
		defer closeDB()

		entries, err := repo.List()
		if err != nil {
			return err
		}

		if savedJSON {
			return printJSON(os.Stdout, entries)
		}

		ranked := make([]provider.RankedProvider, len(entries))
		for i, e := range entries {
			ranked[i] = provider.RankedProvider{Provider: e.Provider}
		}

		if savedSortBy != "" {
			key, err := provider.ParseSortKey(savedSortBy)
			if err != nil {
				return err
			}

			providers := make([]provider.Provider, len(entries))
			for i, e := range entries {
				providers[i] = e.Provider
			}

			ranked = provider.Rank(providers, cfg.device(), key)
		}

		printProviders(os.Stdout, ranked)

		return nil
	},
}

var savedAddCmd = &cobra.Command{
	Use:   "add id...",
	Short: "Save providers from the last search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		last, err := cfg.loadLastSearch()
		if err != nil {
			return err
		}

		repo, closeDB, err := cfg.openSaved()
		if err != nil {
			return err
		}
		defer closeDB()

		var errs []error

		for _, id := range args {
			i := slices.IndexFunc(last.Providers, func(p provider.Provider) bool { return p.ID == id })
			if i < 0 {
				errs = append(errs, fmt.Errorf("provider %s is not in search %s", id, last.ID))

				continue
			}

			p := last.Providers[i]
			if err := repo.Save(p); err != nil {
				errs = append(errs, err)

				continue
			}

			fmt.Printf("%s %s\n", color.GreenString("Saved"), p.Name)
		}

		return errors.Join(errs...)
	},
}

var savedRemoveCmd = &cobra.Command{
	Use:   "remove id...",
	Short: "Remove saved providers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		repo, closeDB, err := cfg.openSaved()
		if err != nil {
			return err
		}
		defer closeDB()

		var errs []error

		for _, id := range args {
			if err := repo.Remove(id); err != nil {
				errs = append(errs, err)
			}
		}

		return errors.Join(errs...)
	},
}

var savedNearCmd = &cobra.Command{
	Use:   "near",
	Short: "List saved providers near a postal code or position",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var origin *spatial.Point

		switch {
		case cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon"):
			origin = spatial.NewPoint(nearLat, nearLon)
		case nearZip != "":
			p, err := cfg.resolver(cmd.Context()).ResolvePostal(cmd.Context(), nearZip)
			if err != nil {
				return err
			}

			origin = p
		default:
			origin = cfg.device()
		}

		if origin == nil {
			return errors.New("no origin: use --zip, --lat/--lon or set MEDMATCH_LAT/MEDMATCH_LON")
		}

		repo, closeDB, err := cfg.openSaved()
		if err != nil {
			return err
		}
		defer closeDB()

		ranked, err := repo.Near(*origin, nearRadius)
		if err != nil {
			return err
		}

		if savedJSON {
			return printJSON(os.Stdout, ranked)
		}

		printProviders(os.Stdout, ranked)

		return nil
	},
}

func init() {
	savedCmd.PersistentFlags().BoolVar(&savedJSON, "json", false, "print as JSON")
	savedListCmd.Flags().StringVar(&savedSortBy, "sort", "", "sort by distance from the device, score or name")

	f := savedNearCmd.Flags()
	f.StringVar(&nearZip, "zip", "", "postal code to measure from")
	f.Float64Var(&nearLat, "lat", 0, "latitude to measure from")
	f.Float64Var(&nearLon, "lon", 0, "longitude to measure from")
	f.Float64Var(&nearRadius, "radius", settings.DefaultRadiusMiles, "radius in miles")
	savedNearCmd.MarkFlagsRequiredTogether("lat", "lon")

	savedCmd.AddCommand(savedListCmd, savedAddCmd, savedRemoveCmd, savedNearCmd)
	rootCmd.AddCommand(savedCmd)
}
