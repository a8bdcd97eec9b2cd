package canonical

import (
	"strconv"
	"strings"
)

// PageNumLink returns the link to page pagenum of the listing currently being
// served.
// Request is the request URI of the current page (path and query string) and
// link is the page link the caller computed so far; it is returned as is when
// pretty permalinks are disabled.
//
// If link already ends in a page number greater than 1 that differs from the
// page of the current request, that number is used instead of pagenum.
func (l Links) PageNumLink(link, request string, pagenum int) string {
	rw := l.Rewrite
	if !rw.UsingPermalinks() {
		return link
	}

	request = removeURIArgs(request, "paged")

	if n := PageNumFromPath(link); isDigits(n) {
		if v, _ := strconv.Atoi(n); v > 1 && n != PageNumFromPath(request) {
			pagenum = v
		}
	}

	if loc, err := parseLocation(l.Site.Home); err == nil && loc.path != "" {
		if len(request) >= len(loc.path) && strings.EqualFold(request[:len(loc.path)], loc.path) {
			request = request[len(loc.path):]
		}
	}
	request = strings.TrimLeft(request, "/")

	var query string
	if idx := strings.IndexByte(request, '?'); idx != -1 {
		request, query = request[:idx], request[idx:]
	}

	request = stripPagination(request, rawurlencode(rw.PaginationBase))
	if rw.Index != "" && len(request) >= len(rw.Index) && strings.EqualFold(request[:len(rw.Index)], rw.Index) {
		request = request[len(rw.Index):]
	}
	request = strings.TrimLeft(request, "/")

	base := TrailingSlash(l.Site.Home)
	if rw.UsingIndexPermalinks() && (pagenum > 1 || request != "") {
		base += rw.Index + "/"
	}
	if pagenum > 1 {
		if request != "" {
			request = TrailingSlash(request)
		}
		request += rw.UserTrailingSlash(rw.PaginationBase+"/"+strconv.Itoa(pagenum), SlashPaged)
	}
	return base + request + query
}

// PageNumFromPath returns the last segment of path if it ends in a digit,
// ignoring a single trailing slash.
// It returns the empty string otherwise.
func PageNumFromPath(path string) string {
	path = strings.TrimSuffix(path, "/")
	last := path[strings.LastIndexByte(path, '/')+1:]
	if last == "" || last[len(last)-1] < '0' || last[len(last)-1] > '9' {
		return ""
	}
	return last
}

// stripPagination removes a trailing "<base>/<n>" from a relative path.
func stripPagination(path, base string) string {
	s := strings.TrimSuffix(path, "/")
	idx := strings.LastIndexByte(s, '/')
	if idx == -1 || !isDigits(s[idx+1:]) || !strings.HasSuffix(s[:idx], base) {
		return path
	}
	return s[:idx-len(base)]
}

// removeURIArgs drops keys from the query string of a request URI.
func removeURIArgs(uri string, keys ...string) string {
	path, query, ok := strings.Cut(uri, "?")
	if !ok {
		return uri
	}
	query = removeArgs(query, keys...)
	if query == "" {
		return path
	}
	return path + "?" + query
}
