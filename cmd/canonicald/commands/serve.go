package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"code.soquee.net/canonical"
	"code.soquee.net/canonical/internal/config"
	"code.soquee.net/canonical/update"
)

// requestIDHeader carries the id requests are logged under.
const requestIDHeader = "X-Request-Id"

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve canonical redirects",
		Long: `Start the HTTP server.

Requests for non-canonical URLs are answered with a permanent redirect.
Everything else is passed to a minimal content handler that reports what the
request matched. When update checks are enabled the manifest is consulted
periodically and redirects are switched off once the host platform no longer
needs them.`,
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newSite(cfg, s))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, st *site) error {
	log := slogcontext.FromCtx(ctx)
	h, handler := newHandler(st)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "listening", "addr", cfg.Listen, "home", cfg.Site.Home)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		log.InfoContext(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Update.Enabled {
		checker := newChecker(cfg, st)
		g.Go(func() error {
			return checker.Run(gctx, cfg.HostVersion, cfg.Update.Interval, func(res update.Result) {
				if res.NewVersion != "" {
					log.InfoContext(gctx, "new release available", "version", res.NewVersion)
				}
				if h.Enabled() == res.Disable {
					log.InfoContext(gctx, "canonical redirects toggled", "enabled", !res.Disable, "branch", res.Branch)
				}
				h.SetEnabled(!res.Disable)
			})
		})
	}
	return g.Wait()
}

// newHandler returns the redirect middleware of st and the handler chain it
// is served in.
func newHandler(st *site) (*canonical.Handler, http.Handler) {
	h := canonical.NewHandler(st.resolver, st.classifier, contentHandler())
	return h, withRequestID(h)
}

func newChecker(cfg *config.Config, st *site) *update.Checker {
	return update.NewChecker(versionInfo.Version, st.store,
		update.URL(cfg.Update.URL),
		update.Client(&http.Client{Timeout: cfg.Update.Timeout}),
		update.Retries(cfg.Update.Retries, update.DefaultRetryDelay),
	)
}

// withRequestID logs every request under the id the client sent or a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := r.Context()
		ctx = slogcontext.NewCtx(ctx, slogcontext.FromCtx(ctx).With(slog.String("request_id", id)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// contentHandler reports what a request that was not redirected matched.
func contentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := canonical.QueryFromContext(r.Context())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		switch {
		case q == nil:
			fmt.Fprintln(w, "unclassified")
		case q.NotFound:
			fmt.Fprintln(w, "not found")
		default:
			fmt.Fprintf(w, "%s %d\n", q.Kind, q.ObjectID)
		}
	})
}
