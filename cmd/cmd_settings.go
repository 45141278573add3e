// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/medmatch/medmatch/backend"
	"github.com/medmatch/medmatch/settings"
	"github.com/spf13/cobra"
)

var settingsJSON bool

func settingsStore() (backend.SettingsStore, error) {
	sess, err := cfg.session()
	if err != nil {
		return backend.SettingsStore{}, err
	}

	client, err := cfg.client()
	if err != nil {
		return backend.SettingsStore{}, err
	}

	return backend.SettingsStore{Client: client, Session: sess}, nil
}

func showSettings(s settings.AppSettings) error {
	if settingsJSON {
		return printJSON(os.Stdout, s)
	}

	printSettings(os.Stdout, s)

	return nil
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change the account settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the account settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := settingsStore()
		if err != nil {
			return err
		}

		s, err := store.Fetch(cmd.Context())
		if err != nil {
			return err
		}

		return showSettings(s)
	},
}

// parseAssignments merges key=value arguments into one validated patch.
func parseAssignments(args []string) (settings.Patch, error) {
	var patch settings.Patch

	for _, arg := range args {
		p, err := settings.ParseAssignment(arg)
		if err != nil {
			return settings.Patch{}, err
		}

		patch = patch.Merge(p)
	}

	return patch, patch.Validate()
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change account settings",
	Long: fmt.Sprintf(`Sends the given settings to the backend in a single update.

Keys: %s

$ medmatch settings set default_radius_miles=10 push_notifications=false
`, strings.Join(settings.Keys, ", ")),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseAssignments(args)
		if err != nil {
			return err
		}

		store, err := settingsStore()
		if err != nil {
			return err
		}

		s, err := store.Update(cmd.Context(), patch)
		if err != nil {
			return err
		}

		return showSettings(s)
	},
}

// edit feeds every key=value line of r to the editor. Blank lines and lines
// starting with # are ignored.
func edit(ctx context.Context, editor *settings.Editor, r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		patch, err := settings.ParseAssignment(line)
		if err == nil {
			_, err = editor.Edit(patch)
		}

		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", line, err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	return editor.Save(ctx)
}

var settingsEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit settings interactively, one key=value per line",
	Long: `Reads key=value lines from stdin and applies each one right away. Changes
are saved to the backend once no edit arrived for the debounce window
(MEDMATCH_DEBOUNCE), and a failed save reverts to the last saved values.
Outstanding changes are saved at end of input.
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := settingsStore()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		editor := settings.NewEditor(ctx, store, cfg.Debounce)
		editor.Subscribe(func(st settings.State) {
			printState(os.Stderr, st)
		})

		st, err := editor.Load(ctx)
		if err != nil {
			return err
		}

		if isatty.IsTerminal(os.Stdin.Fd()) {
			printSettings(os.Stderr, st.Settings)
			fmt.Fprintln(os.Stderr, "Enter key=value changes, one per line, Ctrl-D to finish…")
		}

		if err := edit(ctx, editor, os.Stdin, os.Stderr); err != nil {
			return err
		}

		return showSettings(editor.State().Settings)
	},
}

func init() {
	settingsCmd.PersistentFlags().BoolVar(&settingsJSON, "json", false, "print the settings as JSON")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsEditCmd)
	rootCmd.AddCommand(settingsCmd)
}
