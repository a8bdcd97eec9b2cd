package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"code.soquee.net/canonical/store"
)

// NewSeedCmd creates the seed command.
func NewSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load site content from a YAML fixture",
		Long: `Insert the users, terms and posts described by a YAML fixture into the
content store. Use - to read the fixture from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open fixture: %w", err)
				}
				defer f.Close()
				in = f
			}
			fixture, err := store.ReadFixture(in)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.Seed(ctx, fixture); err != nil {
				return err
			}
			slogcontext.FromCtx(ctx).InfoContext(ctx, "seeded store", "database", s.Path(),
				"users", len(fixture.Users), "terms", len(fixture.Terms), "posts", len(fixture.Posts))
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d users, %d terms and %d posts\n",
				len(fixture.Users), len(fixture.Terms), len(fixture.Posts))
			return nil
		},
	}
}
