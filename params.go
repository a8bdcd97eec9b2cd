package canonical

import (
	"net/url"
	"slices"
	"strings"
)

// pair is one key=value argument of a query string.
// The raw text is kept so that arguments survive unchanged unless they are
// explicitly rewritten.
type pair struct {
	raw   string
	key   string
	value string
}

// params is a parsed query string that preserves argument order.
type params struct {
	raw   string
	pairs []pair
	dirty bool
}

func parseParams(raw string) params {
	p := params{raw: raw}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		p.pairs = append(p.pairs, newPair(part))
	}
	return p
}

func newPair(raw string) pair {
	k, v, _ := strings.Cut(raw, "=")
	return pair{raw: raw, key: unescape(k), value: unescape(v)}
}

func unescape(s string) string {
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}

// String renders the query string.
// If nothing changed the original text is returned as is.
func (p params) String() string {
	if !p.dirty {
		return p.raw
	}
	parts := make([]string, 0, len(p.pairs))
	for _, pr := range p.pairs {
		parts = append(parts, pr.raw)
	}
	return strings.Join(parts, "&")
}

// get returns the decoded value of the last argument named key.
func (p params) get(key string) (string, bool) {
	for i := len(p.pairs) - 1; i >= 0; i-- {
		if p.pairs[i].key == key {
			return p.pairs[i].value, true
		}
	}
	return "", false
}

func (p params) has(key string) bool {
	_, ok := p.get(key)
	return ok
}

// without returns the query with every argument named by keys removed.
func (p params) without(keys ...string) params {
	out := params{raw: p.raw, dirty: p.dirty}
	for _, pr := range p.pairs {
		if slices.Contains(keys, pr.key) {
			out.dirty = true
			continue
		}
		out.pairs = append(out.pairs, pr)
	}
	return out
}

// set replaces the value of key, appending the argument if it is not present.
// Both key and value are encoded.
func (p params) set(key, value string) params {
	np := pair{
		raw:   rawurlencode(key) + "=" + rawurlencode(value),
		key:   key,
		value: value,
	}
	out := params{raw: p.raw, dirty: true}
	replaced := false
	for _, pr := range p.pairs {
		if pr.key == key {
			if !replaced {
				out.pairs = append(out.pairs, np)
				replaced = true
			}
			continue
		}
		out.pairs = append(out.pairs, pr)
	}
	if !replaced {
		out.pairs = append(out.pairs, np)
	}
	return out
}

// merge sets every argument of o on p, last one wins.
func (p params) merge(o params) params {
	for _, pr := range o.pairs {
		p = p.set(pr.key, pr.value)
	}
	return p
}

// removeArgs drops keys from a raw query string.
func removeArgs(query string, keys ...string) string {
	return parseParams(query).without(keys...).String()
}

// removeArgsUnlessIn drops those keys from query that the query string of
// target does not also set.
func removeArgsUnlessIn(query, target string, keys ...string) string {
	loc, err := parseLocation(target)
	if err != nil || loc.query == "" {
		return removeArgs(query, keys...)
	}
	tq := parseParams(loc.query)
	var drop []string
	for _, k := range keys {
		if !tq.has(k) {
			drop = append(drop, k)
		}
	}
	return removeArgs(query, drop...)
}

// addArgs sets each argument of extra on the query string of the absolute URL
// u, keeping its fragment.
func addArgs(u string, extra params) string {
	base, frag, hasFrag := strings.Cut(u, "#")
	base, query, _ := strings.Cut(base, "?")
	q := parseParams(query).merge(extra).String()
	if q != "" {
		base += "?" + q
	}
	if hasFrag {
		base += "#" + frag
	}
	return base
}

// rawurlencode escapes everything but unreserved characters.
func rawurlencode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
		}
	}
	return b.String()
}
