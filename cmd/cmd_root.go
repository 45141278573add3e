// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/medmatch/medmatch/backend"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default medmatch.yaml in . or the state directory)")
	flags.String("api-base", backend.DefaultBaseURL, "base URL of the MedMatch API")
	flags.String("state-dir", defaultStateDir(), "directory for the session, saved providers and last search")
	flags.Bool("trace-http", false, "dump HTTP requests and responses to stderr")
}

var rootCmd = &cobra.Command{
	Use:   "medmatch",
	Short: "find in-network healthcare providers near you",
	Long: `
medmatch searches the MedMatch backend for healthcare providers matching an
insurance plan and a specialty, and ranks them by distance, quality score or
name. It also manages the account settings and a local list of saved
providers.
`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		if msg := backend.UserMessage(err); msg != err.Error() {
			log.Printf("Error - %v", err)
			fmt.Fprintln(os.Stderr, msg)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}

		stop()
		os.Exit(1)
	}
}
