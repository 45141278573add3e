// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package importer turns saved provider directory pages into raw provider
// records, geocoding their addresses.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/medmatch/medmatch/geocode"
	"github.com/medmatch/medmatch/provider"
	"github.com/schollz/progressbar/v3"
)

// Options configures an Importer.
type Options struct {
	// MaxProcs bounds concurrent geocoding requests. Zero uses NumCPU.
	MaxProcs int
	// Geocoder resolves card addresses. Nil leaves records without
	// coordinates.
	Geocoder geocode.Geocoder
}

// Metrics counts what an import did.
type Metrics struct {
	Files    int
	Cards    int
	Geocoded int
	Failed   int
}

// Importer parses directory pages.
type Importer struct {
	options Options
	Metrics Metrics
}

// New returns an importer. A nil opts uses the defaults.
func New(opts *Options) *Importer {
	im := &Importer{}
	if opts != nil {
		im.options = *opts
	}

	if im.options.MaxProcs <= 0 {
		im.options.MaxProcs = runtime.NumCPU()
	}

	return im
}

func (im *Importer) parseFile(path string) ([]provider.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	source := filepath.Base(path)

	records, err := provider.ParseCards(f, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for i := range records {
		records[i].ID = provider.RecordID(source + "#" + strconv.Itoa(i+1))
	}

	return records, nil
}

// Import parses every page and geocodes the resulting records. Records keep
// the order of paths and of the cards within each page. A record that can
// not be geocoded is kept without coordinates and counted as failed.
func (im *Importer) Import(ctx context.Context, paths []string) ([]provider.RawRecord, error) {
	var records []provider.RawRecord

	for _, path := range paths {
		rs, err := im.parseFile(path)
		if err != nil {
			return nil, err
		}

		im.Metrics.Files++
		im.Metrics.Cards += len(rs)
		records = append(records, rs...)
	}

	if im.options.Geocoder == nil || len(records) == 0 {
		return records, nil
	}

	if err := im.geocode(ctx, records); err != nil {
		return nil, err
	}

	log.Printf(
		"Import complete - %d cards from %d files, %d geocoded and %d failed.",
		im.Metrics.Cards, im.Metrics.Files, im.Metrics.Geocoded, im.Metrics.Failed,
	)

	return records, nil
}

func (im *Importer) geocode(ctx context.Context, records []provider.RawRecord) error {
	n := len(records)

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("Geocoding"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	semaphore := make(chan struct{}, im.options.MaxProcs)

	for i := range records {
		wg.Add(1)

		go func(r *provider.RawRecord) {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			err := im.locate(ctx, r)

			mu.Lock()
			if err != nil {
				im.Metrics.Failed++
			} else {
				im.Metrics.Geocoded++
			}
			mu.Unlock()

			if err != nil {
				log.Printf("Geocoding failed - %s %q: %v", r.ID, r.Address, err)
			}

			if bar == nil {
				log.Printf("Geocoding %s", r.ID)
			} else if err := bar.Add(1); err != nil {
				log.Printf("Updating progress bar for %s: %v", r.ID, err)
			}
		}(&records[i])
	}

	wg.Wait()

	return ctx.Err()
}

// locate geocodes the full address, falling back to its postal code.
func (im *Importer) locate(ctx context.Context, r *provider.RawRecord) error {
	if r.Address == "" {
		return errors.New("no address")
	}

	res, err := im.options.Geocoder.Geocode(ctx, r.Address)
	if geocode.IsNotFoundError(err) {
		if postal := provider.ParseAddress(r.Address).PostalCode; postal != "" {
			res, err = im.options.Geocoder.Geocode(ctx, geocode.PostalCode(postal))
		}
	}

	if err != nil {
		return err
	}

	lat, err := json.Marshal(res.Location.Lat)
	if err != nil {
		return err
	}

	lng, err := json.Marshal(res.Location.Lon)
	if err != nil {
		return err
	}

	r.Lat, r.Lng = lat, lng

	return nil
}
