// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/medmatch/medmatch/devserver"
	"github.com/medmatch/medmatch/provider"
	"github.com/spf13/cobra"
)

var devserverOpts struct {
	addr      string
	providers string
}

func loadProviders(path string) ([]provider.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []provider.RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return records, nil
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory MedMatch backend for development",
	Long: `Serves the MedMatch API (accounts, searches and settings) from memory.
Searches answer with a fixed provider list: the mock Austin providers, or
the records of --providers, such as the output of import-cards.

Tokens are signed with MEDMATCH_DEV_SECRET, or a random secret per run.
`,
	RunE: func(_ *cobra.Command, _ []string) error {
		opts := &devserver.Options{}

		if secret := os.Getenv("MEDMATCH_DEV_SECRET"); secret != "" {
			opts.Secret = []byte(secret)
		}

		if devserverOpts.providers != "" {
			records, err := loadProviders(devserverOpts.providers)
			if err != nil {
				return err
			}

			opts.Providers = records
		}

		if !cfg.TraceHTTP {
			gin.SetMode(gin.ReleaseMode)
		}

		return devserver.New(opts).Run(devserverOpts.addr)
	},
}

func init() {
	devserverCmd.Flags().StringVar(&devserverOpts.addr, "addr", "127.0.0.1:8000", "listen address")
	devserverCmd.Flags().StringVar(&devserverOpts.providers, "providers", "", "JSON file of raw provider records to serve")

	rootCmd.AddCommand(devserverCmd)
}
