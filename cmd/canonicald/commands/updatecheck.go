package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"code.soquee.net/canonical/update"
)

// NewUpdateCheckCmd creates the update-check command.
func NewUpdateCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-check",
		Short: "Consult the update manifest once",
		Long: `Fetch the update manifest and report whether a newer release is
recommended for the configured host version and whether redirects would be
disabled. A pending release is recorded in the store like the server does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := newChecker(cfg, newSite(cfg, s)).Check(cmd.Context(), cfg.HostVersion)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Branch:      %s\n", res.Branch)
			fmt.Fprintf(out, "Disabled:    %t\n", res.Disable)
			if res.NewVersion == "" {
				fmt.Fprintln(out, "Up to date")
				return nil
			}
			fmt.Fprintf(out, "New version: %s\n", res.NewVersion)
			pending, ok, err := s.Transient(cmd.Context(), update.Notice)
			if err == nil && ok {
				fmt.Fprintf(out, "Notice:      %s\n", pending)
			}
			return nil
		},
	}
}
