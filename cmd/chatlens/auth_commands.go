package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chatlens/internal/api"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the analysis service",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.sessionManager()
			if err != nil {
				return err
			}

			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				password, err = promptPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
			}

			if err := mgr.Login(cmd.Context(), email, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when omitted)")
	return cmd
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var name string
	var email string
	var password string
	var role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.sessionManager()
			if err != nil {
				return err
			}

			name = strings.TrimSpace(name)
			email = strings.TrimSpace(email)
			if name == "" || email == "" {
				return errors.New("--name and --email are required")
			}
			if password == "" {
				password, err = promptPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
			}

			req := api.RegisterRequest{Name: name, Email: email, Password: password, Role: role}
			if err := mgr.Register(cmd.Context(), req); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (prompted when omitted)")
	cmd.Flags().StringVar(&role, "role", "agent", "Account role")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.sessionManager()
			if err != nil {
				return err
			}
			if !mgr.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "No active session")
				return nil
			}
			mgr.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated account",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := ctx.transportClient()
			if err != nil {
				return err
			}
			var user api.User
			if err := tc.DoJSON(cmd.Context(), http.MethodGet, "/auth/me", nil, &user); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:  %s\n", user.Name)
			fmt.Fprintf(out, "Email: %s\n", user.Email)
			if user.Role != "" {
				fmt.Fprintf(out, "Role:  %s\n", user.Role)
			}
			fmt.Fprintf(out, "Active: %s\n", yesNo(user.IsActive))
			return nil
		},
	}
}

// promptPassword reads a password without echo when attached to a terminal,
// and falls back to a plain line read for piped input.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	in, ok := cmd.InOrStdin().(*os.File)
	if ok && isatty.IsTerminal(in.Fd()) {
		fmt.Fprint(cmd.OutOrStdout(), prompt)
		raw, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
