// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/medmatch/medmatch/provider"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

// eachLine calls fn for every line of stdin, prompting first when stdin is a
// terminal.
func eachLine(prompt string, fn func(line string) (any, error)) error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(os.Stderr, prompt)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return printEach(os.Stdout, scanner, fn)
}

func printEach(w io.Writer, scanner *bufio.Scanner, fn func(line string) (any, error)) error {
	for scanner.Scan() {
		line := scanner.Text()

		v, err := fn(line)
		if err != nil {
			fmt.Fprintf(w, "%s\t%q\n", line, err)

			continue
		}

		s, err := json.Marshal(v)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\t\t%s\n", line, s)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

var debugAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Parse addresses, one per line",
	Long: `Reads one raw address per line and prints it followed by the parsed address.

$ echo '4501 Shoal Creek Blvd, Austin, TX 78756 • 3.5 miles' | medmatch debug address
4501 Shoal Creek Blvd, Austin, TX 78756 • 3.5 miles		{"street":"4501 Shoal Creek Blvd",...}
`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return eachLine("Enter addresses to parse, one per line…", func(line string) (any, error) {
			return provider.ParseAddress(provider.CleanAddress(line)), nil
		})
	},
}

var debugPhoneCmd = &cobra.Command{
	Use:   "phone",
	Short: "Clean phone numbers, one per line",
	RunE: func(_ *cobra.Command, _ []string) error {
		return eachLine("Enter phone numbers to clean, one per line…", func(line string) (any, error) {
			return provider.CleanPhone(&line), nil
		})
	},
}

var debugNormalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize raw provider records, one JSON object per line",
	RunE: func(_ *cobra.Command, _ []string) error {
		index := 0

		return eachLine("Enter raw provider records as JSON, one per line…", func(line string) (any, error) {
			var raw provider.RawRecord
			if err := json.Unmarshal([]byte(line), &raw); err != nil {
				return nil, err
			}

			p, err := provider.Normalize(raw, index)
			index++

			return p, err
		})
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugAddressCmd)
	debugCmd.AddCommand(debugPhoneCmd)
	debugCmd.AddCommand(debugNormalizeCmd)
}
