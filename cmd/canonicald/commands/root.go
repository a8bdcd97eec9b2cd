// Package commands implements the canonicald command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	slogcontext "github.com/veqryn/slog-context"

	"code.soquee.net/canonical"
	"code.soquee.net/canonical/classify"
	"code.soquee.net/canonical/internal/config"
	"code.soquee.net/canonical/store"
)

const (
	configFlag    = "config"
	logLevelFlag  = "loglevel"
	logFormatFlag = "logformat"
)

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd creates the root command with all sub-commands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonicald",
		Short: "Canonical URL redirect server",
		Long: `canonicald answers requests for non-canonical URLs of a site with a
permanent redirect to the canonical URL of the same content.

Content is read from a sqlite store that can be populated with the seed
command. Settings come from an optional YAML or JSON file and CANONICAL_*
environment variables (a .env file in the working directory is loaded).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(slogcontext.NewCtx(ctx, logger))
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringP(configFlag, "c", "", "path of the YAML or JSON config file")
	registerLoggingFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewResolveCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewManifestCmd())
	cmd.AddCommand(NewUpdateCheckCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

func registerLoggingFlags(flags *pflag.FlagSet) {
	flags.String(logLevelFlag, "info", "set the log level (debug, info, warn, error)")
	flags.String(logFormatFlag, "text", "set the log format (text, json)")
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	var level slog.Level
	switch lvl := cmd.Flag(logLevelFlag).Value.String(); lvl {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", lvl)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := cmd.Flag(logFormatFlag).Value.String(); format {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

// loadConfig loads the configuration named by the config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()
	path, err := cmd.Flags().GetString(configFlag)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Database, cfg.Links(), store.Taxonomies(cfg.Taxonomies...))
}

// site bundles the resolver and classifier of a configured site.
type site struct {
	store      *store.Store
	resolver   *canonical.Resolver
	classifier *classify.Classifier
}

func newSite(cfg *config.Config, s *store.Store) *site {
	links := cfg.Links()
	return &site{
		store:      s,
		resolver:   canonical.New(links.Site, links.Rewrite, s, canonical.Guess(s)),
		classifier: classify.New(links, s, cfg.Taxonomies...),
	}
}
