package canonical

import (
	"slices"
	"strconv"
	"strings"
)

// punctuation is trimmed from the end of paths and terminating query
// arguments, both literally and percent encoded.
var punctuation = [...]string{
	" ", "%20",
	"!", "%21",
	`"`, "%22",
	"'", "%27",
	"(", "%28",
	")", "%29",
	",", "%2C",
	".", "%2E",
	";", "%3B",
	"{", "%7B",
	"}", "%7D",
	"%E2%80%9C", // “
	"%E2%80%9D", // ”
}

// terminating lists the query arguments whose values lose trailing
// punctuation and which are dropped entirely when empty.
var terminating = []string{"p", "page_id", "cat", "tag"}

// trimPunctuation removes any run of punctuation from the end of s.
func trimPunctuation(s string) string {
	for {
		trimmed := false
		for _, p := range punctuation {
			if strings.HasSuffix(s, p) {
				s = s[:len(s)-len(p)]
				trimmed = true
			}
		}
		if !trimmed {
			return s
		}
	}
}

// trimPathPunctuation removes punctuation from the end of path, including a
// run that sits just before its trailing slashes.
func trimPathPunctuation(path string) string {
	base := strings.TrimRight(path, "/")
	return trimPunctuation(base) + path[len(base):]
}

// trimNBSP removes non-breaking spaces accidentally pasted at the end of a
// path.
func trimNBSP(path string) string {
	const nbsp = "%c2%a0"
	for len(path) >= len(nbsp) && strings.EqualFold(path[len(path)-len(nbsp):], nbsp) {
		path = path[:len(path)-len(nbsp)]
	}
	return path
}

// trimIndex replaces a trailing index segment (and any slashes after it) with a
// single slash.
func trimIndex(path, index string) string {
	if index == "" {
		return path
	}
	p := strings.TrimRight(path, "/")
	if strings.HasSuffix(p, "/"+index) {
		return p[:len(p)-len(index)]
	}
	return path
}

// collapseSlashes replaces runs of slashes with a single one.
func collapseSlashes(path string) string {
	if !strings.Contains(path, "//") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '/' && i > 0 && path[i-1] == '/' {
			continue
		}
		b.WriteByte(path[i])
	}
	return b.String()
}

// foldOctets lowercases the hex digits of every percent encoded octet.
func foldOctets(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	b := []byte(s)
	for i := 0; i+2 < len(b); i++ {
		if b[i] != '%' || !isHex(b[i+1]) || !isHex(b[i+2]) {
			continue
		}
		b[i+1] = lower(b[i+1])
		b[i+2] = lower(b[i+2])
		i += 2
	}
	return string(b)
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// cleanQuery applies the final query string rules: trailing punctuation is
// trimmed from a terminating argument at the very end of the query, empty
// terminating arguments are dropped and the obsolete rss feed is replaced by
// rss2.
func cleanQuery(query string) string {
	p := parseParams(query)
	if n := len(p.pairs); n > 0 && slices.Contains(terminating, p.pairs[n-1].key) {
		last := p.pairs[n-1]
		if trimmed := trimPunctuation(last.raw); trimmed != last.raw && strings.Contains(trimmed, "=") {
			p.pairs[n-1] = newPair(trimmed)
			p.dirty = true
		}
	}

	kept := p.pairs[:0:0]
	for _, pr := range p.pairs {
		switch {
		case slices.Contains(terminating, pr.key) && pr.value == "":
			p.dirty = true
			continue
		case pr.key == "feed" && pr.value == "rss":
			pr = newPair(pr.raw[:strings.IndexByte(pr.raw, '=')+1] + "rss2")
			p.dirty = true
		}
		kept = append(kept, pr)
	}
	p.pairs = kept
	return p.String()
}

// segments is a path split on its slashes.
type segments struct {
	parts    []string
	trailing bool
}

func splitPath(path string) segments {
	var s segments
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			s.parts = append(s.parts, part)
		}
	}
	s.trailing = strings.HasSuffix(path, "/")
	return s
}

func (s segments) String() string {
	if len(s.parts) == 0 {
		return "/"
	}
	p := "/" + strings.Join(s.parts, "/")
	if s.trailing {
		p += "/"
	}
	return p
}

func (s segments) last() string {
	if len(s.parts) == 0 {
		return ""
	}
	return s.parts[len(s.parts)-1]
}

func (s *segments) drop(n int) {
	s.parts = s.parts[:len(s.parts)-n]
	s.trailing = true
}

// stripEndpoints removes any pagination, feed and comment pagination segments
// from the end of the path.
func (rw Rewrite) stripEndpoints(path string) string {
	s := splitPath(path)
	pagination := rawurlencode(rw.PaginationBase)
	commentPage := rawurlencode(rw.CommentsPaginationBase) + "-"
	stripped := false
	for ; len(s.parts) > 0; stripped = true {
		n := len(s.parts)
		last := s.last()
		switch {
		case n >= 2 && s.parts[n-2] == pagination && isDigits(last):
			s.drop(2)
		case strings.HasPrefix(last, pagination) && isDigits(last[len(pagination):]):
			s.drop(1)
		case strings.HasPrefix(last, commentPage) && isDigits(last[len(commentPage):]):
			s.drop(1)
		case last == rw.FeedBase || rw.SupportsFeed(last):
			s.drop(1)
			if len(s.parts) > 0 && s.last() == rw.CommentsBase {
				s.drop(1)
			}
		default:
			if !stripped {
				return path
			}
			return s.String()
		}
	}
	if !stripped {
		return path
	}
	return s.String()
}

// trimPage removes a trailing page number segment from path.
func trimPage(path string, page int64) string {
	s := splitPath(path)
	if s.last() == strconv.FormatInt(page, 10) {
		s.drop(1)
	}
	return s.String()
}

// basename returns the last segment of path.
func basename(path string) string {
	return splitPath(path).last()
}
