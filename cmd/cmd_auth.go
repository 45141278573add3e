// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/medmatch/medmatch/backend"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	authEmail    string
	authPassword string
	authFirst    string
	authLast     string
)

var stdin = bufio.NewReader(os.Stdin)

// prompt asks for a value on stderr when it was not given as a flag. Secrets
// are read without echo from a terminal.
func prompt(label string, value *string, secret bool) error {
	if *value != "" {
		return nil
	}

	tty := isatty.IsTerminal(os.Stdin.Fd())
	if tty {
		fmt.Fprintf(os.Stderr, "%s: ", label)
	}

	if secret && tty {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
		}

		*value = string(b)

		return nil
	}

	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}

	*value = strings.TrimSpace(line)

	return nil
}

func promptCredentials() error {
	if authPassword == "" {
		authPassword = os.Getenv("MEDMATCH_PASSWORD")
	}

	if err := prompt("Email", &authEmail, false); err != nil {
		return err
	}

	return prompt("Password", &authPassword, true)
}

func login(cmd *cobra.Command) (*backend.Session, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}

	sess, err := client.Login(cmd.Context(), authEmail, authPassword)
	if err != nil {
		return nil, err
	}

	if err := sess.Save(cfg.path(sessionFile)); err != nil {
		return nil, err
	}

	return sess, nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := promptCredentials(); err != nil {
			return err
		}

		sess, err := login(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("%s as %s (user %d)\n", color.GreenString("Logged in"), sess.Email, sess.UserID)

		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and log in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := promptCredentials(); err != nil {
			return err
		}

		client, err := cfg.client()
		if err != nil {
			return err
		}

		account, err := client.Register(cmd.Context(), backend.Registration{
			Email:     authEmail,
			Password:  authPassword,
			FirstName: authFirst,
			LastName:  authLast,
		})
		if err != nil {
			return err
		}

		log.Printf("Signup - created account %d for %s", account.ID, account.Email)

		sess, err := login(cmd)
		if err != nil {
			return fmt.Errorf("account created but login failed: %w", err)
		}

		fmt.Printf("%s as %s (user %d)\n", color.GreenString("Signed up"), sess.Email, sess.UserID)

		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(_ *cobra.Command, _ []string) error {
		return backend.RemoveSession(cfg.path(sessionFile))
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(_ *cobra.Command, _ []string) error {
		sess, err := backend.LoadSession(cfg.path(sessionFile))
		if errors.Is(err, backend.ErrNoSession) {
			fmt.Println(color.YellowString("Not logged in."))

			return nil
		}

		if err != nil {
			return err
		}

		fmt.Printf("%s (user %d) on %s\n", sess.Email, sess.UserID, cfg.APIBase)

		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "account email")
		c.Flags().StringVar(&authPassword, "password", "", "account password (default $MEDMATCH_PASSWORD or prompt)")
	}

	signupCmd.Flags().StringVar(&authFirst, "first-name", "", "first name")
	signupCmd.Flags().StringVar(&authLast, "last-name", "", "last name")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)
}
