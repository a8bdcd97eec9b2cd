package commands

import (
	"github.com/spf13/cobra"

	"code.soquee.net/canonical/update"
)

// NewManifestCmd creates the manifest command.
func NewManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Write an update manifest",
		Long: `Write the update manifest served to running instances to standard output.

Without flags the default manifest is written.`,
		Example: `  canonicald manifest --version 5.1=1.0.0 --version 5.2=1.1.0
  canonicald manifest --disable 5.2 > latest.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := cmd.Flags().GetStringToString("version")
			if err != nil {
				return err
			}
			disable, err := cmd.Flags().GetString("disable")
			if err != nil {
				return err
			}
			m := update.DefaultManifest()
			if len(versions) > 0 {
				m.Version = versions
			}
			m.Disable.WPVersion = disable
			return update.GenerateManifest(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().StringToString("version", nil, "recommended release per host branch (branch=release)")
	cmd.Flags().String("disable", "", "host branch from which redirects are no longer needed")
	return cmd
}
