package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/passport-session/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var noBanner bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the login callback server",
		Long: `Run the HTTP server the hosted login page redirects back to.

The persisted session is restored at start-up and the token file is watched so
that sign-ins and sign-outs made by other processes are picked up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !noBanner {
				displayAppname(cmd, opts.config.GetAppName())
			}
			return runServer(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "do not print the start-up banner")
	return cmd
}

func runServer(ctx context.Context, opts *rootOptions) error {
	a, err := opts.newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Manager.RestoreSession(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if err := a.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("token file not watched, external changes will be missed")
	}

	handler, err := server.New(opts.config, a.Manager)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", opts.config.GetPort())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listener.Addr().String()).Msg("server listening")
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return shutdown(srv)
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func displayAppname(cmd *cobra.Command, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(cmd.OutOrStdout(), myFigure.String())
}
