package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"docdesk/pkg/apiclient"
	"docdesk/pkg/domain"
	"docdesk/pkg/session"
	"docdesk/pkg/tokenstore"
)

func (a *app) input(cmd *cobra.Command) io.Reader {
	if a.deps.In != nil {
		return a.deps.In
	}
	return cmd.InOrStdin()
}

// readSecret returns value or, when empty, the next line of r.
func readSecret(r io.Reader, w io.Writer, prompt, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(w, prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(strings.TrimSuffix(prompt, ": ")))
	}
	return line, nil
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readSecret(a.input(cmd), cmd.ErrOrStderr(), "Password: ", password)
			if err != nil {
				return err
			}
			ok, err := a.session.Login(cmd.Context(), email, pw)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if !ok {
				return errors.New("login rejected: check email and password")
			}
			u := a.session.User()
			return a.emit(cmd.OutOrStdout(), u, func() {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Signed in as "+u.Email))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var email, name, password, confirm string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := a.input(cmd)
			pw, err := readSecret(in, cmd.ErrOrStderr(), "Password: ", password)
			if err != nil {
				return err
			}
			if confirm == "" {
				confirm = pw
			}
			if _, err := a.session.Register(cmd.Context(), email, pw, name, confirm); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			u := a.session.User()
			return a.emit(cmd.OutOrStdout(), u, func() {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Welcome, "+firstNonEmpty(u.Name, u.Email)))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	cmd.Flags().StringVar(&confirm, "confirm-password", "", "password confirmation (defaults to --password)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Signed out"))
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			u := a.session.User()
			return a.emit(cmd.OutOrStdout(), u, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n", userStyle.Render(u.Email), idStyle.Render(u.ID))
				fmt.Fprintf(out, "name: %s\nrole: %s\n", u.Name, u.Role)
			})
		},
	}
}

// watchCmd follows the file token store and reports sign-ins and sign-outs
// made by other docdesk processes.
func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow session changes made by other docdesk processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, ok := a.tokens.(*tokenstore.File)
			if !ok {
				return errors.New("watch requires the file token store")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			a.session.Bootstrap(ctx)
			a.session.OnChange(func(_, cur *domain.User) {
				if cur == nil {
					fmt.Fprintln(out, warningStyle.Render("signed out"))
					return
				}
				fmt.Fprintln(out, successStyle.Render("signed in as "+cur.Email))
			})
			if u := a.session.User(); u != nil {
				fmt.Fprintln(out, dimStyle.Render("watching session of "+u.Email))
			} else {
				fmt.Fprintln(out, dimStyle.Render("watching, currently signed out"))
			}
			if err := a.session.WatchTokens(ctx, file); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
}

// sessionErr maps a missing session to the CLI hint.
func sessionErr(err error) error {
	if errors.Is(err, session.ErrNotAuthenticated) {
		return errSignedOut
	}
	if apiclient.StatusOf(err) == 401 {
		return fmt.Errorf("%w (%v)", errSignedOut, err)
	}
	return err
}
