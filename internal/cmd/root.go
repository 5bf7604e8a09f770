// Package cmd holds the passport command line.
package cmd

import (
	"github.com/jrsteele09/passport-session/internal/app"
	"github.com/jrsteele09/passport-session/internal/config"
	"github.com/jrsteele09/passport-session/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	logLevel   string

	config  config.Config
	appOpts []app.Option
}

// NewRootCommand builds the passport command tree. Options are passed on to
// every app the subcommands create.
func NewRootCommand(appOpts ...app.Option) *cobra.Command {
	opts := &rootOptions{appOpts: appOpts}

	root := &cobra.Command{
		Use:   "passport",
		Short: "Orange ID (Bedrock Passport) session manager",
		Long: `passport keeps a signed-in Orange ID session for this machine.

It receives the tokens the hosted login page appends to its redirect, verifies
them against Bedrock Passport, persists them and keeps them fresh.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.config = cfg

			level := cfg.GetLogLevel()
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			logging.SetupWriter(cmd.ErrOrStderr(), cfg.GetEnv(), level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newCallbackCommand(opts),
		newStatusCommand(opts),
		newRefreshCommand(opts),
		newLogoutCommand(opts),
	)
	return root
}

func (o *rootOptions) newApp() (*app.App, error) {
	return app.New(o.config, o.appOpts...)
}
