package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"code.soquee.net/canonical"
)

// NewResolveCmd creates the resolve command.
func NewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve URL",
		Short: "Print the canonical redirect of a URL",
		Long: `Classify and resolve an absolute URL against the configured site and
print the redirect it would receive, if any.`,
		Example: `  canonicald resolve 'http://example.com/?p=10'
  canonicald resolve --method HEAD http://www.example.com/about`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := cmd.Flags().GetString("method")
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
			r, err := http.NewRequestWithContext(ctx, method, args[0], nil)
			if err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}
			if r.URL.Host == "" {
				return fmt.Errorf("URL must be absolute: %s", args[0])
			}

			st := newSite(cfg, s)
			q, err := st.classifier.Classify(ctx, r)
			if err != nil {
				return fmt.Errorf("failed to classify %s: %w", args[0], err)
			}
			req := &canonical.Request{Method: method, URL: args[0], Get: r.URL.Query()}
			rd, ok := st.resolver.Resolve(ctx, req, q)
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "no redirect (%s)\n", describe(q))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", rd.Status, rd.Location)
			return nil
		},
	}
	cmd.Flags().StringP("method", "X", http.MethodGet, "request method")
	return cmd
}

func describe(q *canonical.Query) string {
	if q.NotFound {
		return "not found"
	}
	return fmt.Sprintf("%s %d", q.Kind, q.ObjectID)
}
