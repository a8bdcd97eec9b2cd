package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/Masterminds/semver/v3"
	slogcontext "github.com/veqryn/slog-context"
)

// Notice is the transient a pending update is recorded under for NoticeTTL.
const (
	Notice    = "canonical_new_version"
	NoticeTTL = 24 * time.Hour
)

// DefaultRetryDelay is the delay before the first retry of a failed fetch.
const DefaultRetryDelay = 500 * time.Millisecond

// Transients stores values that expire.
type Transients interface {
	SetTransient(ctx context.Context, name, value string, ttl time.Duration) error
	DeleteTransient(ctx context.Context, name string) error
}

// Result is the outcome of a check.
type Result struct {
	// Branch is the host branch the manifest was consulted for.
	Branch string
	// Disable is set when the host no longer needs the redirector.
	Disable bool
	// NewVersion is the recommended release if it is newer than the running
	// one.
	NewVersion string
}

// Checker fetches the manifest and compares it against the running release.
type Checker struct {
	url        string
	current    string
	client     *http.Client
	transients Transients
	retries    int
	baseDelay  time.Duration
}

// Option is used to configure a Checker.
type Option func(*Checker)

// URL sets the location of the manifest.
func URL(u string) Option {
	return func(c *Checker) {
		c.url = u
	}
}

// Client sets the HTTP client used to fetch the manifest.
func Client(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// Retries sets how often a failed fetch is retried and the delay before the
// first retry.
// Each further retry waits twice as long.
func Retries(n int, base time.Duration) Option {
	return func(c *Checker) {
		c.retries = n
		c.baseDelay = base
	}
}

// NewChecker returns a checker for the running release current.
// Pending update notices are recorded in t.
func NewChecker(current string, t Transients, opts ...Option) *Checker {
	c := &Checker{
		url:        DefaultURL,
		current:    current,
		client:     &http.Client{Timeout: 10 * time.Second},
		transients: t,
		retries:    3,
		baseDelay:  DefaultRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check fetches the manifest and evaluates it for the host version.
// A disable condition takes precedence over the version check.
func (c *Checker) Check(ctx context.Context, hostVersion string) (Result, error) {
	res := Result{Branch: Branch(hostVersion)}
	m, err := c.Fetch(ctx)
	if err != nil {
		return res, err
	}

	branch, err := semver.NewVersion(res.Branch)
	if err != nil {
		return res, fmt.Errorf("invalid host version %q: %w", hostVersion, err)
	}

	if m.Disable.WPVersion != "" {
		disableAt, err := semver.NewVersion(m.Disable.WPVersion)
		if err != nil {
			return res, fmt.Errorf("invalid disable version %q: %w", m.Disable.WPVersion, err)
		}
		res.Disable = !branch.LessThan(disableAt)
		return res, nil
	}

	rec, ok := m.Version[res.Branch]
	if !ok {
		return res, nil
	}
	recommended, err := semver.NewVersion(rec)
	if err != nil {
		return res, fmt.Errorf("invalid recommended version %q: %w", rec, err)
	}
	current, err := semver.NewVersion(c.current)
	if err != nil {
		return res, fmt.Errorf("invalid running version %q: %w", c.current, err)
	}
	if current.LessThan(recommended) {
		res.NewVersion = rec
		return res, c.transients.SetTransient(ctx, Notice, rec, NoticeTTL)
	}
	return res, c.transients.DeleteTransient(ctx, Notice)
}

// errStatus is returned for responses that are not retried.
var errStatus = errors.New("unexpected status")

// Fetch downloads and decodes the manifest.
// Transport errors and server errors are retried with exponential backoff.
func (c *Checker) Fetch(ctx context.Context) (*Manifest, error) {
	log := slogcontext.FromCtx(ctx)
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := Backoff(c.baseDelay, attempt-1)
			log.DebugContext(ctx, "retrying manifest fetch", "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		var m *Manifest
		var retry bool
		m, retry, err = c.fetch(ctx)
		if err == nil {
			return m, nil
		}
		if !retry {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to fetch manifest after %d attempts: %w", c.retries+1, err)
}

func (c *Checker) fetch(ctx context.Context) (*Manifest, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build manifest request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%w %d fetching manifest", errStatus, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w %d fetching manifest", errStatus, resp.StatusCode)
	}
	m, err := ReadManifest(resp.Body)
	return m, false, err
}

// Backoff returns the delay before retry attempt (starting at 0): base
// doubled for each attempt, capped at 30 seconds, with up to 25% jitter in
// either direction.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := base * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second || backoff <= 0 {
		backoff = 30 * time.Second
	}
	if backoff < 4 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(int64(backoff)/2)) - backoff/4
	return backoff + jitter
}

// Run checks for updates immediately and then every interval until ctx is
// canceled, passing every result to report.
// Failed checks are logged and do not stop the loop.
func (c *Checker) Run(ctx context.Context, hostVersion string, interval time.Duration, report func(Result)) error {
	log := slogcontext.FromCtx(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res, err := c.Check(ctx, hostVersion)
		switch {
		case err != nil && ctx.Err() == nil:
			log.WarnContext(ctx, "update check failed", "error", err)
		case err == nil:
			log.DebugContext(ctx, "update check done", "branch", res.Branch, "disable", res.Disable, "new_version", res.NewVersion)
			report(res)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
