// Package classify parses incoming requests into canonical queries.
//
// Paths are matched against the rewrite rules generated from the site's
// permalink structure, the public query string variables are merged on top
// and the content the variables name is looked up in a Store.
package classify // import "code.soquee.net/canonical/classify"

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	"code.soquee.net/canonical"
	"code.soquee.net/canonical/rewrite"
	"code.soquee.net/canonical/store"
)

// Store looks up the content named by query variables.
type Store interface {
	Post(ctx context.Context, id int64) (*canonical.Post, error)
	PostByName(ctx context.Context, name string, types ...string) (*canonical.Post, error)
	PageByPath(ctx context.Context, path string) (*canonical.Post, error)
	AttachmentByName(ctx context.Context, name string, parent int64) (*canonical.Post, error)
	TermByID(ctx context.Context, id int64, taxonomy string) (*canonical.Term, error)
	TermBySlug(ctx context.Context, taxonomy, slug string) (*canonical.Term, error)
	TermByPath(ctx context.Context, taxonomy, path string) (*canonical.Term, error)
	Author(ctx context.Context, id int64) (*canonical.Author, error)
	AuthorByNicename(ctx context.Context, nicename string) (*canonical.Author, error)
	CountPosts(ctx context.Context, f store.Filter) (int, error)
}

var (
	_ Store                = (*store.Store)(nil)
	_ canonical.Classifier = (*Classifier)(nil)
)

// publicVars are the query string variables a request may set.
var publicVars = []string{
	"p", "page_id", "attachment_id", "attachment", "name", "pagename", "post_type",
	"page", "paged", "cpage",
	"m", "year", "monthnum", "day", "hour", "minute", "second", "w",
	"author", "author_name",
	"cat", "category_name", "tag", "tag_id", "taxonomy", "term",
	"feed", "withcomments", "withoutcomments",
	"s", "preview", "robots", "tb",
}

// Classifier builds canonical queries for the requests of a site.
type Classifier struct {
	links      canonical.Links
	homePath   string
	rules      *rewrite.Rules
	store      Store
	taxonomies []rewrite.Taxonomy
	public     []string
}

// New returns a classifier for the site described by links.
// Custom taxonomies must be listed so that their archives are recognized.
func New(links canonical.Links, s Store, taxonomies ...rewrite.Taxonomy) *Classifier {
	links = canonical.Links{Site: links.Site.WithDefaults(), Rewrite: links.Rewrite.WithDefaults()}
	c := &Classifier{
		links:      links,
		rules:      rewrite.Generate(links.Rewrite, taxonomies...),
		store:      s,
		taxonomies: taxonomies,
		public:     publicVars,
	}
	if u, err := url.Parse(links.Site.Home); err == nil {
		c.homePath = strings.TrimRight(u.EscapedPath(), "/")
	}
	for _, t := range taxonomies {
		c.public = append(c.public, queryVar(t))
	}
	return c
}

// Rules returns the rewrite rules requests are matched against.
func (c *Classifier) Rules() *rewrite.Rules {
	return c.rules
}

func queryVar(t rewrite.Taxonomy) string {
	if t.QueryVar != "" {
		return t.QueryVar
	}
	return t.Name
}

// relative returns the request path below the home path.
// The bare index segment is the root.
func (c *Classifier) relative(p string) string {
	switch {
	case c.homePath == "":
	case p == c.homePath:
		p = "/"
	case strings.HasPrefix(p, c.homePath+"/"):
		p = p[len(c.homePath):]
	}
	if p == "" || strings.TrimSuffix(p, "/") == "/"+c.links.Rewrite.Index {
		return "/"
	}
	return p
}

// Classify parses r into a query.
// Missing content is reported through the NotFound flag of the query; errors
// are only returned if the store fails.
func (c *Classifier) Classify(ctx context.Context, r *http.Request) (*canonical.Query, error) {
	q := &canonical.Query{Vars: make(map[string]string)}
	path := c.relative(r.URL.EscapedPath())
	if path == "/wp-admin" || strings.HasPrefix(path, "/wp-admin/") {
		q.Admin = true
		return q, nil
	}

	matched := true
	if path != "/" {
		var m rewrite.Match
		if m, matched = c.rules.Match(path); matched {
			for k, v := range m.Vars {
				q.Vars[k] = v
			}
		}
	}
	get := r.URL.Query()
	for _, k := range c.public {
		if v := get.Get(k); v != "" {
			q.Vars[k] = v
		}
	}

	q.Feed = q.Var("feed") != ""
	q.Search = q.Var("s") != ""
	q.Preview = nonEmpty(q.Var("preview"))
	q.Trackback = nonEmpty(q.Var("tb"))
	q.Robots = nonEmpty(q.Var("robots"))

	var err error
	switch {
	case !matched:
		q.NotFound = true
	case !q.Robots:
		err = c.resolve(ctx, q, get)
	}
	if err != nil {
		return nil, err
	}
	slogcontext.FromCtx(ctx).DebugContext(ctx, "classified request",
		"path", path, "kind", q.Kind.String(), "object_id", q.ObjectID, "not_found", q.NotFound)
	return q, nil
}

func (c *Classifier) resolve(ctx context.Context, q *canonical.Query, get url.Values) error {
	v := q.Var
	switch {
	case v("attachment_id") != "" || v("attachment") != "":
		return c.attachment(ctx, q)
	case v("p") != "":
		return c.postByID(ctx, q, q.IntVar("p"), canonical.KindPost)
	case v("page_id") != "":
		return c.postByID(ctx, q, q.IntVar("page_id"), canonical.KindPage)
	case v("pagename") != "":
		return c.pagename(ctx, q)
	case v("name") != "":
		return c.name(ctx, q, get)
	case v("m") != "" || v("year") != "" || v("monthnum") != "" || v("day") != "":
		return c.date(ctx, q)
	case v("author") != "" || v("author_name") != "":
		return c.author(ctx, q)
	case v("cat") != "" || v("category_name") != "":
		return c.category(ctx, q)
	case v("tag") != "" || v("tag_id") != "":
		return c.tag(ctx, q)
	}
	if tax, slug, ok := c.taxonomy(q); ok {
		return c.term(ctx, q, tax, slug)
	}
	return c.home(ctx, q)
}

// missing converts ErrNotFound into a 404.
func missing(q *canonical.Query, err error) error {
	if errors.Is(err, canonical.ErrNotFound) {
		q.NotFound = true
		return nil
	}
	return err
}

func kindOf(typ string) canonical.Kind {
	switch typ {
	case canonical.TypePage:
		return canonical.KindPage
	case canonical.TypeAttachment:
		return canonical.KindAttachment
	}
	return canonical.KindPost
}

// singular records the post a singular query found.
// Posts that are not publicly visible are not found.
func (c *Classifier) singular(q *canonical.Query, p *canonical.Post) {
	q.Kind = kindOf(p.Type)
	q.ObjectID = p.ID
	visible := p.Status == canonical.StatusPublish ||
		p.Type == canonical.TypeAttachment && p.Status == "inherit" ||
		q.Preview
	if !p.Public || !visible {
		q.NotFound = true
		return
	}
	q.Post = p
	q.PostCount = 1
	if page := q.IntVar("page"); page > 1 && page > int64(p.Pages()) {
		q.NotFound = true
	}
	if p.Type == canonical.TypePage && c.isPostsPage(p.ID) {
		q.Kind = canonical.KindHome
	}
}

func (c *Classifier) isPostsPage(id int64) bool {
	s := c.links.Site
	return s.ShowOnFront == canonical.ShowPage && s.PageForPosts != 0 && id == s.PageForPosts
}

func (c *Classifier) postByID(ctx context.Context, q *canonical.Query, id int64, kind canonical.Kind) error {
	q.Kind, q.ObjectID = kind, id
	p, err := c.store.Post(ctx, id)
	if err != nil {
		return missing(q, err)
	}
	c.singular(q, p)
	return nil
}

func (c *Classifier) attachment(ctx context.Context, q *canonical.Query) error {
	q.Kind = canonical.KindAttachment
	if id := q.IntVar("attachment_id"); id != 0 {
		q.ObjectID = id
		p, err := c.store.Post(ctx, id)
		if err != nil {
			return missing(q, err)
		}
		if p.Type != canonical.TypeAttachment {
			q.NotFound = true
			return nil
		}
		c.singular(q, p)
		return nil
	}

	var (
		parent *canonical.Post
		err    error
	)
	switch {
	case q.Var("name") != "":
		parent, err = c.store.PostByName(ctx, q.Var("name"), postType(q))
	case q.Var("pagename") != "":
		parent, err = c.store.PageByPath(ctx, q.Var("pagename"))
	default:
		parent = &canonical.Post{}
	}
	if err != nil {
		return missing(q, err)
	}
	p, err := c.store.AttachmentByName(ctx, q.Var("attachment"), parent.ID)
	if err != nil {
		return missing(q, err)
	}
	c.singular(q, p)
	return nil
}

func postType(q *canonical.Query) string {
	if t := q.Var("post_type"); t != "" {
		return t
	}
	return canonical.TypePost
}

func (c *Classifier) pagename(ctx context.Context, q *canonical.Query) error {
	q.Kind = canonical.KindPage
	p, err := c.store.PageByPath(ctx, q.Var("pagename"))
	if err != nil {
		return missing(q, err)
	}
	c.singular(q, p)
	return nil
}

// name looks up a post by slug.
// Slugs from the rewrite rules that name no post may name a top level page.
func (c *Classifier) name(ctx context.Context, q *canonical.Query, get url.Values) error {
	q.Kind = canonical.KindPost
	name := q.Var("name")
	p, err := c.store.PostByName(ctx, name, postType(q))
	if errors.Is(err, canonical.ErrNotFound) && q.Var("post_type") == "" {
		p, err = c.store.PageByPath(ctx, name)
		if err == nil && !get.Has("name") {
			delete(q.Vars, "name")
			q.Vars["pagename"] = name
		}
	}
	if err != nil {
		return missing(q, err)
	}
	c.singular(q, p)
	return nil
}

func (c *Classifier) date(ctx context.Context, q *canonical.Query) error {
	year, month, day := q.IntVar("year"), q.IntVar("monthnum"), q.IntVar("day")
	if m := q.Var("m"); len(m) >= 4 && isDigits(m) {
		part := func(i, j int) int64 {
			if len(m) < j {
				return 0
			}
			n, _ := strconv.ParseInt(m[i:j], 10, 64)
			return n
		}
		year, month, day = part(0, 4), part(4, 6), part(6, 8)
	}

	switch {
	case day != 0:
		q.Kind = canonical.KindDay
	case month != 0:
		q.Kind = canonical.KindMonth
	default:
		q.Kind = canonical.KindYear
	}
	if month > 12 || day != 0 && !validDate(year, month, day) {
		q.NotFound = true
		return nil
	}
	n, err := c.store.CountPosts(ctx, store.Filter{Year: year, Month: month, Day: day})
	if err != nil {
		return err
	}
	q.PostCount = n
	q.NotFound = n == 0
	return nil
}

func validDate(year, month, day int64) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	return t.Day() == int(day)
}

func (c *Classifier) author(ctx context.Context, q *canonical.Query) error {
	q.Kind = canonical.KindAuthor
	var (
		a   *canonical.Author
		err error
	)
	if name := q.Var("author_name"); name != "" {
		a, err = c.store.AuthorByNicename(ctx, name)
	} else {
		a, err = c.store.Author(ctx, q.IntVar("author"))
	}
	if err != nil {
		return missing(q, err)
	}
	q.ObjectID = a.ID
	q.PostCount, err = c.store.CountPosts(ctx, store.Filter{Author: a.ID})
	return err
}

// terms splits a list of terms and returns the first one and the number of
// terms listed.
func terms(list string) (string, int) {
	parts := strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
	if len(parts) == 0 {
		return "", 0
	}
	return parts[0], len(parts)
}

func (c *Classifier) category(ctx context.Context, q *canonical.Query) error {
	q.Kind = canonical.KindCategory
	if cat := q.Var("cat"); cat != "" {
		first, n := terms(cat)
		q.TermCount = n
		t, err := c.store.TermByID(ctx, canonical.Intval(first), store.TaxCategory)
		return c.found(ctx, q, t, err)
	}
	first, n := terms(q.Var("category_name"))
	q.TermCount = n
	t, err := c.store.TermByPath(ctx, store.TaxCategory, first)
	return c.found(ctx, q, t, err)
}

func (c *Classifier) tag(ctx context.Context, q *canonical.Query) error {
	q.Kind = canonical.KindTag
	if slug := q.Var("tag"); slug != "" {
		first, n := terms(slug)
		q.TermCount = n
		t, err := c.store.TermBySlug(ctx, store.TaxTag, first)
		return c.found(ctx, q, t, err)
	}
	q.TermCount = 1
	t, err := c.store.TermByID(ctx, q.IntVar("tag_id"), store.TaxTag)
	return c.found(ctx, q, t, err)
}

// taxonomy returns the custom taxonomy and term slug the query names.
func (c *Classifier) taxonomy(q *canonical.Query) (rewrite.Taxonomy, string, bool) {
	for _, t := range c.taxonomies {
		if slug := q.Var(queryVar(t)); slug != "" {
			return t, slug, true
		}
		if q.Var("taxonomy") == t.Name && q.Var("term") != "" {
			return t, q.Var("term"), true
		}
	}
	return rewrite.Taxonomy{}, "", false
}

func (c *Classifier) term(ctx context.Context, q *canonical.Query, tax rewrite.Taxonomy, slug string) error {
	q.Kind = canonical.KindTaxonomy
	first, n := terms(slug)
	q.TermCount = n
	var (
		t   *canonical.Term
		err error
	)
	if tax.Hierarchical {
		t, err = c.store.TermByPath(ctx, tax.Name, first)
	} else {
		t, err = c.store.TermBySlug(ctx, tax.Name, first)
	}
	return c.found(ctx, q, t, err)
}

// found records the term an archive query found.
// Term archives without posts are not missing.
func (c *Classifier) found(ctx context.Context, q *canonical.Query, t *canonical.Term, err error) error {
	if err != nil {
		return missing(q, err)
	}
	q.Term = t
	q.ObjectID = t.ID
	q.PostCount, err = c.store.CountPosts(ctx, store.Filter{TermID: t.ID})
	return err
}

// home classifies requests without content variables.
// A static front page is a page query.
func (c *Classifier) home(ctx context.Context, q *canonical.Query) error {
	if q.Search {
		n, err := c.store.CountPosts(ctx, store.Filter{})
		q.PostCount = n
		return err
	}
	s := c.links.Site
	if !q.Feed && s.ShowOnFront == canonical.ShowPage && s.PageOnFront != 0 {
		return c.postByID(ctx, q, s.PageOnFront, canonical.KindPage)
	}
	q.Kind = canonical.KindHome
	n, err := c.store.CountPosts(ctx, store.Filter{})
	q.PostCount = n
	return err
}

func nonEmpty(v string) bool {
	return v != "" && v != "0"
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

