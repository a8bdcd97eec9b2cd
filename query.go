package canonical

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Kind is the kind of content a request resolved to.
type Kind int

// Content kinds.
const (
	KindNone Kind = iota
	KindHome
	KindPost
	KindPage
	KindAttachment
	KindYear
	KindMonth
	KindDay
	KindAuthor
	KindCategory
	KindTag
	KindTaxonomy
)

var kindNames = [...]string{
	KindNone:       "none",
	KindHome:       "home",
	KindPost:       "post",
	KindPage:       "page",
	KindAttachment: "attachment",
	KindYear:       "year",
	KindMonth:      "month",
	KindDay:        "day",
	KindAuthor:     "author",
	KindCategory:   "category",
	KindTag:        "tag",
	KindTaxonomy:   "taxonomy",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Post statuses and types the resolver cares about.
const (
	StatusPublish   = "publish"
	StatusAutoDraft = "auto-draft"

	TypePost       = "post"
	TypePage       = "page"
	TypeAttachment = "attachment"
	TypeRevision   = "revision"
)

// PageBreak splits the content of a post into numbered sub-pages.
const PageBreak = "<!--nextpage-->"

// Post is a single content item.
type Post struct {
	ID      int64
	Type    string
	Status  string
	Parent  int64
	Author  int64
	Name    string
	Title   string
	Content string
	Date    time.Time

	// Public reports whether posts of this type are publicly queryable.
	Public bool
}

// Pages returns the number of sub-pages the content is split into.
func (p *Post) Pages() int {
	if p == nil {
		return 0
	}
	return strings.Count(p.Content, PageBreak) + 1
}

// Term is a classification value such as a category or a tag.
type Term struct {
	ID       int64
	Taxonomy string
	Slug     string
	Name     string
	Parent   int64

	// QueryVar is the query string variable of the taxonomy, empty if the
	// taxonomy cannot be queried by one.
	QueryVar string
	// Link is the canonical archive link of the term.
	Link string
}

// Author is a user content is attributed to.
type Author struct {
	ID       int64
	Login    string
	Nicename string
	// Link is the canonical author archive link.
	Link string
}

// Query describes what a request matched.
// It is produced by a Classifier and never modified by the resolver.
type Query struct {
	Kind Kind
	// ObjectID is the id of the queried post, term or author.
	ObjectID int64
	// Post is the queried post for singular kinds.
	Post *Post
	// Term is the queried term for category, tag and taxonomy kinds.
	Term *Term

	// Vars holds the query variables of the request, whether they came from
	// the rewrite rules or from the query string.
	Vars map[string]string

	NotFound  bool
	Feed      bool
	Preview   bool
	Search    bool
	Trackback bool
	Robots    bool
	Admin     bool

	// PostCount is the number of posts found for the query.
	PostCount int
	// TermCount is the number of terms the taxonomy query names.
	TermCount int
}

// Var returns the query variable name or the empty string.
func (q *Query) Var(name string) string {
	return q.Vars[name]
}

// IntVar returns the integer value of the query variable name.
// Leading digits are used if the value is not entirely numeric and 0 is
// returned if there are none.
func (q *Query) IntVar(name string) int64 {
	return Intval(q.Vars[name])
}

// IsSingle reports whether a single post or attachment matched.
func (q *Query) IsSingle() bool {
	return q.Kind == KindPost || q.Kind == KindAttachment
}

// IsSingular reports whether a post, page or attachment matched.
func (q *Query) IsSingular() bool {
	return q.IsSingle() || q.Kind == KindPage
}

// IsDate reports whether a date archive matched.
func (q *Query) IsDate() bool {
	return q.Kind == KindYear || q.Kind == KindMonth || q.Kind == KindDay
}

// IsTerm reports whether a category, tag or custom taxonomy archive matched.
func (q *Query) IsTerm() bool {
	return q.Kind == KindCategory || q.Kind == KindTag || q.Kind == KindTaxonomy
}

// IsFrontPage reports whether the query is for the front page of site.
func (q *Query) IsFrontPage(site Site) bool {
	switch {
	case q.Kind == KindHome && site.ShowOnFront != ShowPage:
		return true
	case q.Kind == KindPage && site.ShowOnFront == ShowPage && site.PageOnFront != 0:
		return q.ObjectID == site.PageOnFront
	}
	return false
}

// slashType is the trailing slash convention of the matched content.
func (q *Query) slashType() SlashType {
	switch {
	case q.IsSingle():
		return SlashSingle
	case q.Kind == KindCategory:
		return SlashCategory
	case q.Kind == KindPage:
		return SlashPage
	case q.Kind == KindDay:
		return SlashDay
	case q.Kind == KindMonth:
		return SlashMonth
	case q.Kind == KindYear:
		return SlashYear
	case q.Kind == KindHome:
		return SlashHome
	}
	return SlashNone
}

// Request is the part of an HTTP request the resolver looks at.
type Request struct {
	Method string
	// URL is the absolute requested URL as it appeared in the address bar.
	URL string
	// Get holds the query string arguments of the request.
	// If nil, they are parsed from URL.
	Get url.Values
}

// NewRequest builds a Request from an incoming HTTP request.
func NewRequest(r *http.Request) *Request {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	// The raw request URI keeps the percent encoding of the address bar.
	uri := r.RequestURI
	if !strings.HasPrefix(uri, "/") {
		uri = r.URL.RequestURI()
	}
	return &Request{
		Method: r.Method,
		URL:    scheme + "://" + r.Host + uri,
		Get:    r.URL.Query(),
	}
}

// Intval parses the leading decimal digits of s, allowing a sign.
// It returns 0 if there are none.
func Intval(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// nonEmpty reports whether v is set to something other than "" or "0".
func nonEmpty(v string) bool {
	return v != "" && v != "0"
}
