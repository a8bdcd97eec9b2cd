package canonical

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/net/idna"
)

// Redirect is a canonical redirect decision.
type Redirect struct {
	// Location is the absolute URL to redirect to.
	Location string
	// Status is the HTTP status code of the redirect.
	Status int
	// Immediate is set for redirects of retired entry points (old feed
	// scripts, the old registration page) that are issued without further
	// normalization.
	Immediate bool
}

// Resolver computes canonical redirects for a site.
// A Resolver is safe for concurrent use once created.
type Resolver struct {
	site     Site
	rw       Rewrite
	links    Links
	entities Entities

	guesser       Guesser
	verifyPreview PreviewVerifier
	vetoes        []Veto
}

// New returns a resolver for the site.
// Unset rewrite bases and site settings are filled with their defaults.
// A nil entities is a site without any content.
func New(site Site, rw Rewrite, entities Entities, opts ...Option) *Resolver {
	if entities == nil {
		entities = noEntities{}
	}
	site = site.WithDefaults()
	rw = rw.WithDefaults()
	r := &Resolver{
		site:     site,
		rw:       rw,
		links:    Links{Site: site, Rewrite: rw},
		entities: entities,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Links returns the link builder of the site the resolver was created for.
func (r *Resolver) Links() Links {
	return r.links
}

// Resolve returns the redirect the request should receive, if any.
//
// A redirect is only returned if resolving its own location does not propose
// a further redirect, so that following it never results in a chain.
// Neither req nor q are modified.
func (r *Resolver) Resolve(ctx context.Context, req *Request, q *Query) (Redirect, bool) {
	if req == nil || q == nil {
		return Redirect{}, false
	}
	if req.Get == nil {
		cp := *req
		cp.Get = queryOf(req.URL)
		req = &cp
	}
	q = r.demotePreview(ctx, req, q)

	rd, ok := r.propose(ctx, req, q)
	if !ok || rd.Immediate {
		return rd, ok
	}

	verify := *req
	verify.URL = rd.Location
	if next, again := r.propose(ctx, &verify, q); again {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "suppressing chained redirect",
			"requested", req.URL, "redirect", rd.Location, "next", next.Location)
		return Redirect{}, false
	}
	return rd, true
}

// demotePreview returns q with its preview flag cleared if it previews a
// published post without a valid preview token.
func (r *Resolver) demotePreview(ctx context.Context, req *Request, q *Query) *Query {
	id := q.IntVar("p")
	if !q.Preview || id == 0 {
		return q
	}
	post, err := r.entities.Post(ctx, id)
	if err != nil || post.Status != StatusPublish {
		return q
	}
	previewID := req.Get.Get("preview_id")
	nonce := req.Get.Get("preview_nonce")
	if req.Get.Has("preview_id") && req.Get.Has("preview_nonce") &&
		r.verifyPreview != nil && r.verifyPreview(Intval(previewID), nonce) {
		return q
	}
	cp := *q
	cp.Preview = false
	return &cp
}

func queryOf(raw string) url.Values {
	_, query, _ := strings.Cut(stripFragment(raw), "?")
	v, _ := url.ParseQuery(query)
	if v == nil {
		v = url.Values{}
	}
	return v
}

// pass holds the state of a single resolution of a request.
type pass struct {
	*Resolver
	ctx context.Context
	log *slog.Logger
	req *Request
	q   *Query

	original location
	// loc is the working copy of the requested location.
	loc location
	// target is the canonical link computed for the request so far.
	target string
}

// Query arguments that identify a singular post.
var singularArgs = []string{"p", "page_id", "attachment_id", "pagename", "name", "post_type"}

func (r *Resolver) propose(ctx context.Context, req *Request, q *Query) (Redirect, bool) {
	switch strings.ToUpper(req.Method) {
	case "", http.MethodGet, http.MethodHead:
	default:
		return Redirect{}, false
	}
	if q.Trackback || q.Search || q.Admin || q.Preview || q.Robots {
		return Redirect{}, false
	}
	if r.site.PermalinksUnsupported && r.rw.UsingPermalinks() {
		return Redirect{}, false
	}

	original, err := parseLocation(req.URL)
	if err != nil {
		slogcontext.FromCtx(ctx).DebugContext(ctx, "ignoring unparsable url", "url", req.URL, "error", err)
		return Redirect{}, false
	}

	p := &pass{
		Resolver: r,
		ctx:      ctx,
		log:      slogcontext.FromCtx(ctx),
		req:      req,
		q:        q,
		original: original,
		loc:      original,
	}
	if rd, ok := p.build(); ok {
		return rd, true
	}
	return p.finish()
}

// build computes the canonical link of the matched content.
// It returns early with immediate redirects.
func (p *pass) build() (Redirect, bool) {
	p.loc.path = trimNBSP(p.loc.path)
	if nonEmpty(p.q.Var("preview")) {
		p.loc.query = removeArgs(p.loc.query, "preview")
	}

	p.postFeed()
	p.revision()

	switch {
	case p.q.NotFound:
		p.notFound()
	case p.rw.UsingPermalinks():
		p.legacy()
		p.postPaging()
		if rd, ok := p.endpoints(); ok {
			return rd, true
		}
		if basename(p.loc.path) == legacyRegistration {
			return p.immediate(p.links.Registration())
		}
	}
	return Redirect{}, false
}

func (p *pass) immediate(location string) (Redirect, bool) {
	p.log.DebugContext(p.ctx, "redirecting retired entry point", "requested", p.req.URL, "redirect", location)
	return Redirect{Location: location, Status: http.StatusMovedPermanently, Immediate: true}, true
}

// get reports whether the request's own query string sets name to a non
// empty value.
func (p *pass) get(name string) bool {
	return nonEmpty(p.req.Get.Get(name))
}

func (p *pass) permalink(id int64) string {
	if id == 0 {
		return ""
	}
	link, err := p.entities.Permalink(p.ctx, id)
	if err != nil {
		p.lookupFailed("permalink", id, err)
		return ""
	}
	return link
}

func (p *pass) post(id int64) *Post {
	post, err := p.entities.Post(p.ctx, id)
	if err != nil {
		p.lookupFailed("post", id, err)
		return nil
	}
	return post
}

func (p *pass) lookupFailed(what string, id int64, err error) {
	if errors.Is(err, ErrNotFound) {
		return
	}
	p.log.DebugContext(p.ctx, "lookup failed", "entity", what, "id", id, "error", err)
}

// removeUnlessInTarget strips keys from the query unless the current target
// sets them itself.
func (p *pass) removeUnlessInTarget(keys ...string) {
	p.loc.query = removeArgsUnlessIn(p.loc.query, p.target, keys...)
}

func (p *pass) remove(keys ...string) {
	p.loc.query = removeArgs(p.loc.query, keys...)
}

// postFeed sends feeds of a single post to its comments feed.
func (p *pass) postFeed() {
	id := p.q.IntVar("p")
	if !p.q.Feed || id == 0 {
		return
	}
	post := p.post(id)
	if post == nil {
		return
	}
	permalink := p.permalink(id)
	if permalink == "" && p.rw.UsingPermalinks() {
		return
	}
	p.target = p.links.PostCommentsFeed(post, permalink, p.q.Var("feed"))
	p.removeUnlessInTarget(slices.Concat(singularArgs, []string{"feed"})...)
	p.loc.path = pathOf(p.target)
}

// revision sends singular requests that found nothing to the post they name,
// or its parent if it is a revision.
func (p *pass) revision() {
	id := p.q.IntVar("p")
	if !p.q.IsSingular() || p.q.PostCount >= 1 || id == 0 {
		return
	}
	post := p.post(id)
	if post == nil {
		return
	}
	if post.Type == TypeRevision && post.Parent > 0 {
		id = post.Parent
	}
	if p.target = p.permalink(id); p.target != "" {
		p.removeUnlessInTarget(singularArgs...)
	}
}

// notFound tries to find the content a request that matched nothing was meant
// for.
func (p *pass) notFound() {
	q := p.q
	if id := max(q.IntVar("p"), q.IntVar("page_id"), q.IntVar("attachment_id")); id != 0 {
		if post := p.post(id); post != nil && post.Public && post.Status != StatusAutoDraft {
			p.target = p.permalink(post.ID)
			p.removeUnlessInTarget(singularArgs...)
		}
	}

	year, month, day := q.IntVar("year"), q.IntVar("monthnum"), q.IntVar("day")
	switch {
	case nonEmpty(q.Var("day")) && nonEmpty(q.Var("monthnum")) && nonEmpty(q.Var("year")):
		if !validDate(year, month, day) {
			p.target = p.links.Month(year, month)
			p.removeUnlessInTarget("year", "monthnum", "day")
		}
	case nonEmpty(q.Var("monthnum")) && nonEmpty(q.Var("year")) && month > 12:
		p.target = p.links.Year(year)
		p.removeUnlessInTarget("year", "monthnum")
	}

	if p.target == "" && p.guesser != nil {
		guess, err := p.guesser.Guess(p.ctx, p.req, q)
		if err != nil {
			p.log.DebugContext(p.ctx, "guessing permalink failed", "error", err)
		}
		if guess != "" {
			p.target = guess
			p.removeUnlessInTarget(slices.Concat([]string{"page", "feed"}, singularArgs)...)
		}
	}

	if page := q.IntVar("page"); page != 0 && q.Post != nil && strings.Contains(q.Post.Content, PageBreak) {
		p.loc.path = trimPage(p.loc.path, page)
		p.remove("page")
		p.target = p.permalink(q.Post.ID)
	}
}

func validDate(year, month, day int64) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	return t.Day() == int(day) && t.Month() == time.Month(month)
}

// legacy maps query string access to matched content onto its pretty
// permalink.
func (p *pass) legacy() {
	q := p.q
	switch {
	case q.Kind == KindAttachment && p.target == "" && onlyVars(q.Vars, "attachment", "attachment_id"):
		if p.get("attachment_id") {
			if p.target = p.permalink(q.IntVar("attachment_id")); p.target != "" {
				p.remove("attachment_id")
			}
		} else {
			p.target = p.permalink(q.ObjectID)
		}
	case q.IsSingle() && p.get("p") && p.target == "":
		if p.target = p.permalink(q.IntVar("p")); p.target != "" {
			p.remove("p", "post_type")
		}
	case q.IsSingle() && p.get("name") && p.target == "":
		if p.target = p.permalink(q.ObjectID); p.target != "" {
			p.remove("name")
		}
	case q.Kind == KindPage && p.get("page_id") && p.target == "":
		if p.target = p.permalink(q.IntVar("page_id")); p.target != "" {
			p.remove("page_id")
		}
	case q.Kind == KindPage && !q.Feed && p.site.ShowOnFront == ShowPage &&
		q.ObjectID == p.site.PageOnFront && p.target == "":
		p.target = p.links.Home("/")
	case q.Kind == KindHome && p.get("page_id") && p.site.ShowOnFront == ShowPage &&
		q.IntVar("page_id") == p.site.PageForPosts && p.target == "":
		if p.target = p.permalink(p.site.PageForPosts); p.target != "" {
			p.remove("page_id")
		}
	case p.get("m") && q.IsDate():
		p.legacyM(q.Var("m"))
	case q.Kind == KindDay && nonEmpty(q.Var("year")) && nonEmpty(q.Var("monthnum")) && p.get("day"):
		p.target = p.links.Day(q.IntVar("year"), q.IntVar("monthnum"), q.IntVar("day"))
		p.remove("year", "monthnum", "day")
	case q.Kind == KindMonth && nonEmpty(q.Var("year")) && p.get("monthnum"):
		p.target = p.links.Month(q.IntVar("year"), q.IntVar("monthnum"))
		p.remove("year", "monthnum")
	case q.Kind == KindYear && p.get("year"):
		p.target = p.links.Year(q.IntVar("year"))
		p.remove("year")
	case q.Kind == KindAuthor && p.get("author") && isDigits(p.req.Get.Get("author")):
		p.legacyAuthor(q.IntVar("author"))
	case q.IsTerm():
		p.term()
	case q.IsSingle() && strings.Contains(p.rw.Structure, "%category%") && q.Var("category_name") != "":
		p.categoryPath(q.Var("category_name"))
	}
}

// legacyM maps the compact m date variable to the matching date archive.
func (p *pass) legacyM(m string) {
	part := func(i, j int) int64 {
		v, _ := strconv.ParseInt(m[i:j], 10, 64)
		return v
	}
	switch len(m) {
	case 4:
		p.target = p.links.Year(part(0, 4))
	case 6:
		p.target = p.links.Month(part(0, 4), part(4, 6))
	case 8:
		p.target = p.links.Day(part(0, 4), part(4, 6), part(6, 8))
	}
	if p.target != "" {
		p.remove("m")
	}
}

// legacyAuthor maps numeric author ids to the author archive if the author
// has published anything.
func (p *pass) legacyAuthor(id int64) {
	author, err := p.entities.Author(p.ctx, id)
	if err != nil {
		p.lookupFailed("author", id, err)
		return
	}
	published, err := p.entities.AuthorHasPublished(p.ctx, author.ID)
	if err != nil {
		p.lookupFailed("author posts", id, err)
		return
	}
	if published && author.Link != "" {
		p.target = author.Link
		p.remove("author")
	}
}

// term normalizes the query variables of a single term archive.
func (p *pass) term() {
	q := p.q
	t := q.Term
	if q.TermCount > 1 || t == nil || t.ID == 0 || t.Link == "" || p.loc.query == "" {
		return
	}

	remove := []string{"term", "taxonomy"}
	switch q.Kind {
	case KindCategory:
		remove = append(remove, "category_name", "cat")
	case KindTag:
		remove = append(remove, "tag", "tag_id")
	default:
		if t.QueryVar != "" {
			remove = append(remove, t.QueryVar)
		}
	}

	var rewriteVars []string
	for k := range q.Vars {
		if _, ok := p.req.Get[k]; !ok {
			rewriteVars = append(rewriteVars, k)
		}
	}

	if len(rewriteVars) > 0 {
		// Only duplicates of variables the rewrite rules produced are dropped.
		var drop []string
		for _, k := range remove {
			if slices.Contains(rewriteVars, k) {
				drop = append(drop, k)
			}
		}
		p.remove(drop...)
		return
	}

	p.remove(remove...)
	link, err := parseLocation(t.Link)
	if err != nil {
		p.log.DebugContext(p.ctx, "ignoring unparsable term link", "link", t.Link, "error", err)
		return
	}
	if link.query != "" {
		p.loc.query = parseParams(p.loc.query).merge(parseParams(link.query)).String()
		return
	}
	p.loc.path = link.path
}

// categoryPath sends single posts requested under a category they do not
// belong to to their permalink.
func (p *pass) categoryPath(path string) {
	cat, err := p.entities.CategoryByPath(p.ctx, path)
	if err == nil {
		var in bool
		in, err = p.entities.HasTerm(p.ctx, p.q.ObjectID, cat.ID, "category")
		if err == nil && in {
			return
		}
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.log.DebugContext(p.ctx, "category lookup failed", "path", path, "error", err)
	}
	p.target = p.permalink(p.q.ObjectID)
}

// postPaging appends the sub-page of singular content to its permalink.
func (p *pass) postPaging() {
	q := p.q
	if !q.IsSingular() || !nonEmpty(q.Var("page")) {
		return
	}
	if p.target == "" {
		p.target = p.permalink(q.ObjectID)
	}
	if page := q.IntVar("page"); page > 1 && p.target != "" {
		n := strconv.FormatInt(page, 10)
		if q.IsFrontPage(p.site) {
			p.target = TrailingSlash(p.target) + p.rw.UserTrailingSlash(p.rw.PaginationBase+"/"+n, SlashPaged)
		} else {
			p.target = TrailingSlash(p.target) + p.rw.UserTrailingSlash(n, SlashSinglePaged)
		}
	}
	p.remove("page")
}

// endpoints rebuilds the pagination, feed and comment pagination endpoints of
// the path.
func (p *pass) endpoints() (Redirect, bool) {
	q, rw := p.q, p.rw
	if !nonEmpty(q.Var("paged")) && !q.Feed && !nonEmpty(q.Var("cpage")) {
		return Redirect{}, false
	}
	p.loc.path = rw.stripEndpoints(p.loc.path)

	var addl string
	extend := func(s string) {
		if addl != "" {
			addl = TrailingSlash(addl)
		}
		addl += s
	}

	feed := q.Var("feed")
	switch {
	case q.Feed && rw.SupportsFeed(feed):
		if !q.IsSingular() && nonEmpty(q.Var("withcomments")) {
			addl += rw.CommentsBase + "/"
		}
		name := feed
		switch {
		case rw.DefaultFeed == "rss" && feed == "feed" || feed == "rss":
			name = "rss2"
			if rw.DefaultFeed == "rss2" {
				name = ""
			}
		case feed == rw.DefaultFeed || feed == "feed":
			name = ""
		}
		addl += rw.UserTrailingSlash(rw.FeedBase+"/"+name, SlashFeed)
		p.remove("feed")
	case q.Feed && feed == "old":
		if name, ok := legacyFeeds[basename(p.loc.path)]; ok {
			return p.immediate(p.links.Feed(name))
		}
	}

	if paged := q.IntVar("paged"); paged > 0 {
		p.remove("paged")
		switch {
		case !q.Feed && paged > 1 && !q.IsSingle():
			extend(rw.UserTrailingSlash(rw.PaginationBase+"/"+strconv.FormatInt(paged, 10), SlashPaged))
		case !q.Feed && !q.IsSingle():
			extend("")
		case q.Feed && paged > 1:
			p.loc.query = parseParams(p.loc.query).set("paged", strconv.FormatInt(paged, 10)).String()
		}
	}

	cpage := q.IntVar("cpage")
	if p.site.PageComments && (p.site.DefaultCommentsPage == CommentsNewest && cpage > 0 ||
		p.site.DefaultCommentsPage != CommentsNewest && cpage > 1) {
		extend(rw.UserTrailingSlash(rw.CommentsPaginationBase+"-"+strconv.FormatInt(cpage, 10), SlashCommentPage))
		p.remove("cpage")
	}

	p.loc.path = rw.UserTrailingSlash(trimIndex(p.loc.path, rw.Index), SlashNone)
	if addl != "" && rw.UsingIndexPermalinks() && !strings.Contains(p.loc.path, "/"+rw.Index+"/") {
		p.loc.path = TrailingSlash(p.loc.path) + rw.Index + "/"
	}
	if addl != "" {
		p.loc.path = TrailingSlash(p.loc.path) + addl
	}
	p.target = p.loc.scheme + "://" + p.loc.authority() + p.loc.path
	return Redirect{}, false
}

// finish normalizes the candidate and decides whether it differs from the
// requested URL.
func (p *pass) finish() (Redirect, bool) {
	p.loc.query = strings.TrimPrefix(p.loc.query, "?")
	if p.target != "" && p.loc.query != "" {
		extra := parseParams(p.loc.query)
		if t, err := parseLocation(p.target); err == nil && t.query != "" {
			if n, _ := extra.get("name"); nonEmpty(n) {
				if tn, _ := parseParams(t.query).get("name"); !nonEmpty(tn) {
					extra = extra.without("name")
				}
			}
		}
		p.target = addArgs(p.target, extra)
	}
	if p.target != "" {
		loc, err := parseLocation(p.target)
		if err != nil {
			p.log.DebugContext(p.ctx, "ignoring unparsable redirect", "redirect", p.target, "error", err)
			return Redirect{}, false
		}
		p.loc = loc
	}

	homePath := "/"
	if home, err := parseLocation(p.site.Home); err == nil {
		p.loc.host = home.host
		p.loc.port = home.port
		if home.path != "" {
			homePath = home.path
		}
	} else {
		p.loc.port = ""
	}

	p.loc.path = trimIndex(p.loc.path, p.rw.Index)
	p.loc.path = trimPathPunctuation(p.loc.path)
	if p.loc.query != "" {
		p.loc.query = strings.TrimPrefix(cleanQuery(p.loc.query), "?")
	}
	if !p.rw.UsingIndexPermalinks() && p.rw.Index != "" {
		p.loc.path = strings.ReplaceAll(p.loc.path, "/"+p.rw.Index+"/", "/")
	}

	p.trailingSlash()
	p.loc.path = collapseSlashes(p.loc.path)
	if TrailingSlash(p.loc.path) == TrailingSlash(homePath) {
		p.loc.path = TrailingSlash(p.loc.path)
	}

	orig, redir := foldHost(p.original.host), foldHost(p.loc.host)
	if orig == redir || orig != "www."+redir && "www."+orig != redir {
		p.loc.host = p.original.host
	}

	if !p.original.equal(p.loc) {
		p.target = p.loc.String()
	}
	requested := p.req.URL
	if p.target == "" || p.target == requested {
		return Redirect{}, false
	}

	requested = foldOctets(requested)
	target := p.target
	for _, veto := range p.vetoes {
		var ok bool
		if target, ok = veto(target, requested); !ok || target == "" {
			p.log.DebugContext(p.ctx, "redirect vetoed", "requested", requested, "redirect", p.target)
			return Redirect{}, false
		}
	}
	if stripFragment(foldOctets(target)) == stripFragment(requested) {
		return Redirect{}, false
	}
	return Redirect{Location: target, Status: http.StatusMovedPermanently}, true
}

// trailingSlash applies the trailing slash convention of the matched content.
func (p *pass) trailingSlash() {
	q := p.q
	front := q.IsFrontPage(p.site)
	paged := q.IntVar("paged")
	switch {
	case p.rw.UsingPermalinks() && !q.NotFound && (!front || paged > 1):
		t := q.slashType()
		if paged > 0 {
			t = SlashPaged
		}
		p.loc.path = p.rw.UserTrailingSlash(p.loc.path, t)
	case front:
		p.loc.path = TrailingSlash(p.loc.path)
	}
}

// foldHost returns the lowercased ASCII form of host.
func foldHost(host string) string {
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.ToLower(host)
}

// onlyVars reports whether vars sets nothing but the named variables.
func onlyVars(vars map[string]string, names ...string) bool {
	for k := range vars {
		if !slices.Contains(names, k) {
			return false
		}
	}
	return true
}
