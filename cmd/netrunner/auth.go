package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"netrunner/internal/auth"
	"netrunner/internal/security"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var authTokenStdin bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored GitHub token",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a GitHub token in the OS keyring",
	Long: `Store the token used to dispatch workflows. The token needs the
"actions: write" permission on the workflows repository.

On a terminal the token is read without echo; with --with-token it is read
from standard input.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored GitHub token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := auth.Delete(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Removed stored token")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which token would be used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, source, err := auth.ResolveToken(globals.token)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token %s from %s\n", security.MaskToken(token), source)
		return nil
	},
}

func init() {
	authLoginCmd.Flags().BoolVar(&authTokenStdin, "with-token", false, "Read the token from standard input")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	var token string
	switch {
	case authTokenStdin || !isInteractive():
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read token: %w", err)
		}
		token = line
	default:
		fmt.Fprint(out, "GitHub token: ")
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprint(out, "\n")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		token = string(bytes)
	}
	token = strings.TrimSpace(token)

	if err := security.ValidateToken(token); err != nil {
		return newUsageError("%v", err)
	}
	if !security.IsKnownTokenFormat(token) {
		fmt.Fprintln(out, mutedStyle.Render("Warning: token does not look like a GitHub token"))
	}

	if err := auth.Store(token); err != nil {
		return err
	}
	fmt.Fprintf(out, "Stored token %s in the keyring\n", security.MaskToken(token))
	return nil
}
