package canonical

import (
	"errors"
	"net"
	"net/url"
	"slices"
	"strings"
)

var errNoHost = errors.New("canonical: url has no host")

// location is a URL split into the parts the resolver rewrites.
// The path and query are kept exactly as they were written so that untouched
// parts never pick up a second layer of encoding.
type location struct {
	scheme string
	host   string
	port   string
	path   string
	query  string
}

// parseLocation splits an absolute URL.
func parseLocation(raw string) (location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return location{}, err
	}
	if u.Host == "" {
		return location{}, errNoHost
	}
	loc := location{
		scheme: u.Scheme,
		host:   u.Hostname(),
		port:   u.Port(),
	}

	rest := raw
	if idx := strings.Index(rest, "://"); idx != -1 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexByte(rest, '#'); idx != -1 {
		rest = rest[:idx]
	}
	if idx := strings.IndexByte(rest, '?'); idx != -1 {
		loc.query = rest[idx+1:]
		rest = rest[:idx]
	}
	if idx := strings.IndexByte(rest, '/'); idx != -1 {
		loc.path = rest[idx:]
	}
	return loc, nil
}

// pathOf returns the raw path of an absolute URL.
func pathOf(raw string) string {
	loc, err := parseLocation(raw)
	if err != nil {
		return ""
	}
	return loc.path
}

// String reassembles the location.
func (l location) String() string {
	var b strings.Builder
	b.WriteString(l.scheme)
	b.WriteString("://")
	b.WriteString(l.authority())
	b.WriteString(l.path)
	if l.query != "" {
		b.WriteByte('?')
		b.WriteString(l.query)
	}
	return b.String()
}

// authority returns the host and port, with IPv6 hosts in brackets.
func (l location) authority() string {
	if l.port != "" {
		return net.JoinHostPort(l.host, l.port)
	}
	if strings.Contains(l.host, ":") {
		return "[" + l.host + "]"
	}
	return l.host
}

// key returns the parts two locations are compared by.
// The scheme is not among them.
func (l location) key() []string {
	k := []string{l.host, l.path}
	if l.port != "" {
		k = append(k, l.port)
	}
	if l.query != "" {
		k = append(k, l.query)
	}
	return k
}

func (l location) equal(o location) bool {
	return slices.Equal(l.key(), o.key())
}

// stripFragment removes the fragment from a URL.
func stripFragment(raw string) string {
	if idx := strings.IndexByte(raw, '#'); idx != -1 {
		return raw[:idx]
	}
	return raw
}
