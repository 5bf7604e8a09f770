package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	apperrors "github.com/jrsteele09/passport-session/internal/errors"
	"github.com/jrsteele09/passport-session/internal/utils"
	"github.com/jrsteele09/passport-session/session"
	"github.com/spf13/cobra"
)

func newCallbackCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "callback <redirect-url>",
		Short: "Sign in with the URL the login page redirected to",
		Long: `Sign in by pasting the full URL the hosted login page redirected the browser
to, for example:

  passport callback 'http://localhost:8080/auth/callback?token=...&refreshToken=...'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, refreshToken, err := parseCallbackURL(args[0])
			if err != nil {
				return err
			}
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Manager.IngestCallback(cmd.Context(), token, refreshToken); err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			current, _ := a.Manager.Session()
			return printSession(cmd.OutOrStdout(), a.Manager.Status(), current, false)
		},
	}
}

func parseCallbackURL(raw string) (token, refreshToken string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", apperrors.Wrapf(apperrors.ErrInvalidCallbackURL, "%v", err)
	}
	q := u.Query()
	token, refreshToken = q.Get("token"), q.Get("refreshToken")
	if token == "" || refreshToken == "" {
		return "", "", apperrors.Wrapf(apperrors.ErrInvalidCallbackURL, "url carries no token pair")
	}
	return token, refreshToken, nil
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a user is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Manager.RestoreSession(cmd.Context()); err != nil {
				return err
			}
			a.Manager.Wait()
			current, _ := a.Manager.Session()
			return printSession(cmd.OutOrStdout(), a.Manager.Status(), current, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func newRefreshCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Manager.RestoreSession(cmd.Context()); err != nil {
				return err
			}
			a.Manager.Wait()
			if err := a.Manager.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			current, _ := a.Manager.Session()
			return printSession(cmd.OutOrStdout(), a.Manager.Status(), current, false)
		},
	}
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Manager.RestoreSession(cmd.Context()); err != nil {
				return err
			}
			a.Manager.SignOut(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

type sessionView struct {
	Status   session.State `json:"status"`
	LoggedIn bool          `json:"loggedIn"`
	Verified bool          `json:"verified"`
	UserID   string        `json:"userId,omitempty"`
	Email    string        `json:"email,omitempty"`
	Provider string        `json:"provider,omitempty"`
	Wallet   string        `json:"ethAddress,omitempty"`
	Tier     string        `json:"tier,omitempty"`
}

func printSession(w io.Writer, state session.State, current session.Session, asJSON bool) error {
	view := sessionView{Status: state, LoggedIn: state == session.Authenticated}
	if current.AccessToken != "" {
		view.Verified = current.Verified
		view.Tier = current.Tier.String()
	}
	if current.User != nil {
		view.UserID = current.User.ID
		view.Email = current.User.Email
		view.Provider = string(current.User.Provider)
		view.Wallet = utils.Value(current.User.EthAddress)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Fprintf(w, "status:   %s\n", view.Status)
	if view.UserID != "" {
		fmt.Fprintf(w, "user:     %s (%s)\n", view.UserID, view.Provider)
		if view.Email != "" {
			fmt.Fprintf(w, "email:    %s\n", view.Email)
		}
		if view.Wallet != "" {
			fmt.Fprintf(w, "wallet:   %s\n", view.Wallet)
		}
	}
	if view.Tier != "" {
		fmt.Fprintf(w, "storage:  %s\n", view.Tier)
		fmt.Fprintf(w, "verified: %t\n", view.Verified)
	}
	return nil
}
