package canonical_test

import (
	"context"
	"net/url"
	"strconv"
	"testing"
	"time"

	"code.soquee.net/canonical"
)

// entities is an in memory site used by the resolver tests.
type entities struct {
	posts      map[int64]*canonical.Post
	permalinks map[int64]string
	categories map[string]*canonical.Term
	postTerms  map[int64][]int64
	authors    map[int64]*canonical.Author
	published  map[int64]bool
}

func newEntities() *entities {
	date := time.Date(2019, 1, 2, 10, 0, 0, 0, time.UTC)
	return &entities{
		posts: map[int64]*canonical.Post{
			10: {ID: 10, Type: canonical.TypePost, Status: canonical.StatusPublish, Author: 1, Name: "hello", Content: "one" + canonical.PageBreak + "two", Date: date, Public: true},
			11: {ID: 11, Type: canonical.TypePage, Status: canonical.StatusPublish, Name: "about", Date: date, Public: true},
			13: {ID: 13, Type: canonical.TypeAttachment, Status: "inherit", Parent: 10, Name: "image", Date: date, Public: true},
			14: {ID: 14, Type: canonical.TypePost, Status: "draft", Name: "wip", Date: date, Public: true},
			15: {ID: 15, Type: canonical.TypeRevision, Status: "inherit", Parent: 10, Date: date},
		},
		permalinks: map[int64]string{
			10: "http://example.com/2019/01/hello/",
			11: "http://example.com/about/",
			13: "http://example.com/2019/01/hello/image/",
			14: "http://example.com/?p=14",
		},
		categories: map[string]*canonical.Term{
			"news": {ID: 2, Taxonomy: "category", Slug: "news", QueryVar: "category_name", Link: "http://example.com/category/news/"},
		},
		postTerms: map[int64][]int64{10: {2}},
		authors: map[int64]*canonical.Author{
			1: {ID: 1, Login: "admin", Nicename: "admin", Link: "http://example.com/author/admin/"},
			2: {ID: 2, Login: "lurker", Nicename: "lurker", Link: "http://example.com/author/lurker/"},
		},
		published: map[int64]bool{1: true},
	}
}

func (e *entities) Post(_ context.Context, id int64) (*canonical.Post, error) {
	if p, ok := e.posts[id]; ok {
		return p, nil
	}
	return nil, canonical.ErrNotFound
}

func (e *entities) Permalink(_ context.Context, id int64) (string, error) {
	if l, ok := e.permalinks[id]; ok {
		return l, nil
	}
	return "", canonical.ErrNotFound
}

func (e *entities) CategoryByPath(_ context.Context, path string) (*canonical.Term, error) {
	if t, ok := e.categories[path]; ok {
		return t, nil
	}
	return nil, canonical.ErrNotFound
}

func (e *entities) HasTerm(_ context.Context, postID, termID int64, _ string) (bool, error) {
	for _, id := range e.postTerms[postID] {
		if id == termID {
			return true, nil
		}
	}
	return false, nil
}

func (e *entities) Author(_ context.Context, id int64) (*canonical.Author, error) {
	if a, ok := e.authors[id]; ok {
		return a, nil
	}
	return nil, canonical.ErrNotFound
}

func (e *entities) AuthorHasPublished(_ context.Context, id int64) (bool, error) {
	return e.published[id], nil
}

var (
	prettySite    = canonical.Site{Home: "http://example.com"}
	prettyRewrite = canonical.Rewrite{Structure: "/%year%/%monthnum%/%postname%/"}
)

func newResolver(opts ...canonical.Option) *canonical.Resolver {
	return canonical.New(prettySite, prettyRewrite, newEntities(), opts...)
}

func vars(kv ...string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func hello() *canonical.Query {
	e := newEntities()
	return &canonical.Query{
		Kind:      canonical.KindPost,
		ObjectID:  10,
		Post:      e.posts[10],
		Vars:      vars("year", "2019", "monthnum", "01", "name", "hello"),
		PostCount: 1,
	}
}

func home() *canonical.Query {
	return &canonical.Query{Kind: canonical.KindHome, Vars: vars(), PostCount: 1}
}

func request(method, raw string) *canonical.Request {
	return &canonical.Request{Method: method, URL: raw}
}

var resolveTests = [...]struct {
	req      *canonical.Request
	q        func() *canonical.Query
	location string
}{
	0: {
		req: request("GET", "http://example.com/?p=10"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("p", "10")
			return q
		},
		location: "http://example.com/2019/01/hello/",
	},
	1: {
		req:      request("GET", "http://www.example.com/2019/01/hello/"),
		q:        hello,
		location: "http://example.com/2019/01/hello/",
	},
	2: {
		req: request("GET", "http://other.org/2019/01/hello/"),
		q:   hello,
	},
	3: {
		req:      request("GET", "http://example.com/2019/01/hello"),
		q:        hello,
		location: "http://example.com/2019/01/hello/",
	},
	4: {
		req:      request("GET", "http://example.com/2019/01/hello/)."),
		q:        hello,
		location: "http://example.com/2019/01/hello/",
	},
	5: {
		req: request("GET", "http://example.com/2019/01/hello/"),
		q:   hello,
	},
	6: {
		req: request("HEAD", "http://example.com/"),
		q:   home,
	},
	7: {
		req: request("GET", "http://example.com/?p=10&page=2"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("p", "10", "page", "2")
			return q
		},
		location: "http://example.com/2019/01/hello/2/",
	},
	8: {
		req: request("GET", "http://example.com/feed/rss/"),
		q: func() *canonical.Query {
			q := home()
			q.Feed = true
			q.Vars = vars("feed", "rss")
			return q
		},
		location: "http://example.com/feed/",
	},
	9: {
		req:      request("POST", "http://www.example.com/2019/01/hello/"),
		q:        hello,
		location: "",
	},
	10: {
		req: request("GET", "http://example.com/2019/02/30/"),
		q: func() *canonical.Query {
			return &canonical.Query{
				Kind:     canonical.KindDay,
				NotFound: true,
				Vars:     vars("year", "2019", "monthnum", "02", "day", "30"),
			}
		},
		location: "http://example.com/2019/02/",
	},
	11: {
		req: request("GET", "http://example.com/2019/13/"),
		q: func() *canonical.Query {
			return &canonical.Query{
				Kind:     canonical.KindMonth,
				NotFound: true,
				Vars:     vars("year", "2019", "monthnum", "13"),
			}
		},
		location: "http://example.com/2019/",
	},
	12: {
		req: request("GET", "http://example.com/?p=15"),
		q: func() *canonical.Query {
			return &canonical.Query{
				Kind:     canonical.KindPost,
				NotFound: true,
				Vars:     vars("p", "15"),
			}
		},
		location: "http://example.com/2019/01/hello/",
	},
	13: {
		req:      request("GET", "http://example.com/2019/01/caf%c3%a9"),
		q:        hello,
		location: "http://example.com/2019/01/caf%c3%a9/",
	},
	14: {
		req: request("GET", "http://example.com/?author=1"),
		q: func() *canonical.Query {
			return &canonical.Query{Kind: canonical.KindAuthor, ObjectID: 1, Vars: vars("author", "1"), PostCount: 1}
		},
		location: "http://example.com/author/admin/",
	},
	15: {
		req: request("GET", "http://example.com/?author=2"),
		q: func() *canonical.Query {
			return &canonical.Query{Kind: canonical.KindAuthor, ObjectID: 2, Vars: vars("author", "2")}
		},
	},
	16: {
		req: request("GET", "http://example.com/?m=201901"),
		q: func() *canonical.Query {
			return &canonical.Query{Kind: canonical.KindMonth, Vars: vars("m", "201901"), PostCount: 1}
		},
		location: "http://example.com/2019/01/",
	},
	17: {
		req: request("GET", "http://example.com/?year=2019&monthnum=1&day=2"),
		q: func() *canonical.Query {
			return &canonical.Query{Kind: canonical.KindDay, Vars: vars("year", "2019", "monthnum", "1", "day", "2"), PostCount: 1}
		},
		location: "http://example.com/2019/01/02/",
	},
	18: {
		req: request("GET", "http://example.com/?s=hello"),
		q: func() *canonical.Query {
			return &canonical.Query{Search: true, Vars: vars("s", "hello")}
		},
	},
	19: {
		req: request("GET", "http://example.com/2019/01/hello/?utm_source=x"),
		q:   hello,
	},
	20: {
		req: request("GET", "http://www.example.com/2019/01/hello/?p=10&utm_source=x"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("p", "10")
			return q
		},
		location: "http://example.com/2019/01/hello/?utm_source=x",
	},
	21: {
		req:      request("GET", "http://example.com/hello!/"),
		q:        hello,
		location: "http://example.com/hello/",
	},
	22: {
		req:      request("GET", "http://example.com/?cat=2"),
		q:        news,
		location: "http://example.com/category/news/",
	},
	23: {
		req: request("GET", "http://example.com/?tag=go&utm_source=x"),
		q: func() *canonical.Query {
			return &canonical.Query{
				Kind:      canonical.KindTag,
				ObjectID:  4,
				Term:      &canonical.Term{ID: 4, Taxonomy: "post_tag", Slug: "go", QueryVar: "tag", Link: "http://example.com/tag/go/"},
				TermCount: 1,
				Vars:      vars("tag", "go"),
				PostCount: 1,
			}
		},
		location: "http://example.com/tag/go/?utm_source=x",
	},
	24: {
		req: request("GET", "http://example.com/category/news/?cat=2"),
		q: func() *canonical.Query {
			q := news()
			q.Vars = vars("category_name", "news", "cat", "2")
			return q
		},
	},
	25: {
		req: request("GET", "http://example.com/?page_id=11"),
		q: func() *canonical.Query {
			return &canonical.Query{Kind: canonical.KindPage, ObjectID: 11, Vars: vars("page_id", "11"), PostCount: 1}
		},
		location: "http://example.com/about/",
	},
	26: {
		req: request("GET", "http://example.com/?attachment_id=13"),
		q: func() *canonical.Query {
			return &canonical.Query{Kind: canonical.KindAttachment, ObjectID: 13, Vars: vars("attachment_id", "13"), PostCount: 1}
		},
		location: "http://example.com/2019/01/hello/image/",
	},
	27: {
		req: request("GET", "http://example.com/?name=hello"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("name", "hello")
			return q
		},
		location: "http://example.com/2019/01/hello/",
	},
}

func news() *canonical.Query {
	e := newEntities()
	return &canonical.Query{
		Kind:      canonical.KindCategory,
		ObjectID:  2,
		Term:      e.categories["news"],
		TermCount: 1,
		Vars:      vars("cat", "2"),
		PostCount: 1,
	}
}

func TestResolve(t *testing.T) {
	r := newResolver()
	for i, tc := range resolveTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			rd, ok := r.Resolve(context.Background(), tc.req, tc.q())
			if tc.location == "" {
				if ok {
					t.Fatalf("unexpected redirect to %q", rd.Location)
				}
				return
			}
			if !ok {
				t.Fatalf("expected redirect to %q, got none", tc.location)
			}
			if rd.Location != tc.location {
				t.Errorf("wrong location: want=%q, got=%q", tc.location, rd.Location)
			}
			if rd.Status != 301 {
				t.Errorf("wrong status: want=301, got=%d", rd.Status)
			}
		})
	}
}

// Resolving the location of a redirect must never propose another one.
func TestResolveIdempotent(t *testing.T) {
	r := newResolver()
	for i, tc := range resolveTests {
		if tc.location == "" {
			continue
		}
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			q := tc.q()
			rd, ok := r.Resolve(context.Background(), tc.req, q)
			if !ok {
				t.Fatal("expected a redirect")
			}
			next := &canonical.Request{Method: tc.req.Method, URL: rd.Location, Get: tc.req.Get}
			if next.Get == nil {
				u, err := url.Parse(tc.req.URL)
				if err != nil {
					t.Fatal(err)
				}
				next.Get = u.Query()
			}
			if again, ok := r.Resolve(context.Background(), next, q); ok {
				t.Errorf("redirect to %q proposes a further redirect to %q", rd.Location, again.Location)
			}
		})
	}
}

var siteTests = [...]struct {
	site     canonical.Site
	rw       canonical.Rewrite
	req      *canonical.Request
	q        func() *canonical.Query
	location string
}{
	0: {
		site: canonical.Site{Home: "http://example.com", ShowOnFront: canonical.ShowPage, PageOnFront: 11},
		rw:   prettyRewrite,
		req:  request("GET", "http://example.com/?page=2"),
		q: func() *canonical.Query {
			return &canonical.Query{Kind: canonical.KindPage, ObjectID: 11, Vars: vars("page", "2"), PostCount: 1}
		},
		location: "http://example.com/page/2/",
	},
	1: {
		site: canonical.Site{Home: "http://example.com", PageComments: true},
		rw:   prettyRewrite,
		req:  request("GET", "http://example.com/2019/01/hello/?cpage=2"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars["cpage"] = "2"
			return q
		},
		location: "http://example.com/2019/01/hello/comment-page-2/",
	},
	2: {
		site: canonical.Site{Home: "http://example.com"},
		rw:   prettyRewrite,
		req:  request("GET", "http://example.com/2019/01/hello/?cpage=2"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars["cpage"] = "2"
			return q
		},
	},
	3: {
		site: prettySite,
		rw:   canonical.Rewrite{Structure: "/%category%/%postname%/"},
		req:  request("GET", "http://example.com/sports/hello/"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("category_name", "sports", "name", "hello")
			return q
		},
		location: "http://example.com/2019/01/hello/",
	},
	4: {
		site: prettySite,
		rw:   canonical.Rewrite{Structure: "/%category%/%postname%/"},
		req:  request("GET", "http://example.com/news/hello/"),
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("category_name", "news", "name", "hello")
			return q
		},
	},
	5: {
		site:     canonical.Site{Home: "http://[::1]:8080"},
		rw:       prettyRewrite,
		req:      request("GET", "http://[::1]:8080/2019/01/hello"),
		q:        hello,
		location: "http://[::1]:8080/2019/01/hello/",
	},
}

func TestResolveSite(t *testing.T) {
	for i, tc := range siteTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			r := canonical.New(tc.site, tc.rw, newEntities())
			rd, ok := r.Resolve(context.Background(), tc.req, tc.q())
			switch {
			case tc.location == "" && ok:
				t.Fatalf("unexpected redirect to %q", rd.Location)
			case tc.location == "":
				return
			case !ok:
				t.Fatalf("expected redirect to %q, got none", tc.location)
			case rd.Location != tc.location:
				t.Errorf("wrong location: want=%q, got=%q", tc.location, rd.Location)
			}

			next := &canonical.Request{Method: tc.req.Method, URL: rd.Location}
			if again, ok := r.Resolve(context.Background(), next, tc.q()); ok {
				t.Errorf("redirect to %q proposes a further redirect to %q", rd.Location, again.Location)
			}
		})
	}
}

func TestResolveOctetCase(t *testing.T) {
	guess := func(link string) canonical.Option {
		return canonical.Guess(canonical.GuesserFunc(func(context.Context, *canonical.Request, *canonical.Query) (string, error) {
			return link, nil
		}))
	}
	q := func() *canonical.Query {
		return &canonical.Query{NotFound: true, Vars: vars("name", "a")}
	}

	for _, tc := range [...]struct {
		requested, guess string
	}{
		{requested: "http://example.com/a%2F/", guess: "http://example.com/a%2f/"},
		{requested: "http://example.com/a%2f/", guess: "http://example.com/a%2F/"},
	} {
		r := newResolver(guess(tc.guess))
		if rd, ok := r.Resolve(context.Background(), request("GET", tc.requested), q()); ok {
			t.Errorf("%q differs from %q in octet case only but redirected to %q", tc.requested, tc.guess, rd.Location)
		}
	}

	r := newResolver(guess("http://example.com/b%2F/"))
	if _, ok := r.Resolve(context.Background(), request("GET", "http://example.com/a%2F/"), q()); !ok {
		t.Error("expected a redirect to a different path")
	}
}

func TestResolveNoEntities(t *testing.T) {
	r := canonical.New(prettySite, prettyRewrite, nil)
	q := &canonical.Query{Kind: canonical.KindPost, ObjectID: 10, Vars: vars("p", "10")}
	if rd, ok := r.Resolve(context.Background(), request("GET", "http://example.com/?p=10"), q); ok {
		t.Errorf("unexpected redirect to %q", rd.Location)
	}
	rd, ok := r.Resolve(context.Background(), request("GET", "http://www.example.com/"), home())
	if !ok || rd.Location != "http://example.com/" {
		t.Errorf("host was not normalized: %+v", rd)
	}
}

func TestResolveQueryUnchanged(t *testing.T) {
	r := newResolver()
	q := hello()
	q.Vars = vars("p", "10", "page", "2")
	req := request("GET", "http://example.com/?p=10&page=2")
	r.Resolve(context.Background(), req, q)
	if len(q.Vars) != 2 || q.Var("p") != "10" || q.Var("page") != "2" {
		t.Errorf("query variables were modified: %v", q.Vars)
	}
	if req.Get != nil {
		t.Errorf("request was modified: %v", req.Get)
	}
}

func TestResolveNil(t *testing.T) {
	r := newResolver()
	if _, ok := r.Resolve(context.Background(), nil, home()); ok {
		t.Error("nil request must not redirect")
	}
	if _, ok := r.Resolve(context.Background(), request("GET", "http://example.com/"), nil); ok {
		t.Error("nil query must not redirect")
	}
}

func TestImmediate(t *testing.T) {
	r := newResolver(canonical.Filter(func(string, string) (string, bool) {
		return "", false
	}))

	rd, ok := r.Resolve(context.Background(), request("GET", "http://example.com/wp-rss2.php"), &canonical.Query{
		Kind: canonical.KindHome,
		Feed: true,
		Vars: vars("feed", "old"),
	})
	if !ok || !rd.Immediate {
		t.Fatalf("expected an immediate redirect, got %+v", rd)
	}
	if want := "http://example.com/feed/"; rd.Location != want {
		t.Errorf("wrong feed location: want=%q, got=%q", want, rd.Location)
	}

	rd, ok = r.Resolve(context.Background(), request("GET", "http://example.com/wp-register.php"), &canonical.Query{Vars: vars()})
	if !ok || !rd.Immediate {
		t.Fatalf("expected an immediate redirect, got %+v", rd)
	}
	if want := "http://example.com/wp-login.php?action=register"; rd.Location != want {
		t.Errorf("wrong registration location: want=%q, got=%q", want, rd.Location)
	}
}

func TestFilter(t *testing.T) {
	req := request("GET", "http://www.example.com/2019/01/hello/")

	var gotRedirect, gotRequested string
	r := newResolver(canonical.Filter(func(redirect, requested string) (string, bool) {
		gotRedirect, gotRequested = redirect, requested
		return redirect + "#top", true
	}))
	rd, ok := r.Resolve(context.Background(), req, hello())
	if !ok {
		t.Fatal("expected a redirect")
	}
	if want := "http://example.com/2019/01/hello/#top"; rd.Location != want {
		t.Errorf("veto replacement ignored: want=%q, got=%q", want, rd.Location)
	}
	if gotRedirect != "http://example.com/2019/01/hello/" || gotRequested != req.URL {
		t.Errorf("wrong veto arguments: %q, %q", gotRedirect, gotRequested)
	}

	var calls int
	r = newResolver(
		canonical.Filter(func(string, string) (string, bool) { return "", false }),
		canonical.Filter(func(redirect, _ string) (string, bool) {
			calls++
			return redirect, true
		}),
	)
	if _, ok := r.Resolve(context.Background(), req, hello()); ok {
		t.Error("canceled redirect was issued")
	}
	if calls != 0 {
		t.Errorf("veto after cancellation was consulted %d times", calls)
	}
}

func TestPreview(t *testing.T) {
	req := &canonical.Request{
		Method: "GET",
		URL:    "http://example.com/?p=10&preview=true&preview_id=10&preview_nonce=abc",
	}
	preview := func() *canonical.Query {
		q := hello()
		q.Preview = true
		q.Vars = vars("p", "10", "preview", "true")
		return q
	}

	rd, ok := newResolver().Resolve(context.Background(), req, preview())
	if !ok {
		t.Fatal("previews of published posts without a valid token must redirect")
	}
	if want := "http://example.com/2019/01/hello/?preview_id=10&preview_nonce=abc"; rd.Location != want {
		t.Errorf("wrong location: want=%q, got=%q", want, rd.Location)
	}

	r := newResolver(canonical.VerifyPreview(func(id int64, nonce string) bool {
		return id == 10 && nonce == "abc"
	}))
	if rd, ok := r.Resolve(context.Background(), req, preview()); ok {
		t.Errorf("valid preview was redirected to %q", rd.Location)
	}
}

func TestGuess(t *testing.T) {
	var calls int
	r := newResolver(canonical.Guess(canonical.GuesserFunc(func(ctx context.Context, req *canonical.Request, q *canonical.Query) (string, error) {
		calls++
		return "http://example.com/2019/01/hello/", nil
	})))
	q := &canonical.Query{NotFound: true, Vars: vars("name", "hel")}

	rd, ok := r.Resolve(context.Background(), request("GET", "http://example.com/hel/"), q)
	if !ok {
		t.Fatal("expected a redirect to the guessed permalink")
	}
	if want := "http://example.com/2019/01/hello/"; rd.Location != want {
		t.Errorf("wrong location: want=%q, got=%q", want, rd.Location)
	}
	if calls == 0 {
		t.Error("guesser was not consulted")
	}
}

func TestPermalinksUnsupported(t *testing.T) {
	site := prettySite
	site.PermalinksUnsupported = true
	r := canonical.New(site, prettyRewrite, newEntities())
	if rd, ok := r.Resolve(context.Background(), request("GET", "http://www.example.com/2019/01/hello/"), hello()); ok {
		t.Errorf("unexpected redirect to %q", rd.Location)
	}

	// Without pretty permalinks there is nothing the server fails to route.
	r = canonical.New(site, canonical.Rewrite{}, newEntities())
	if _, ok := r.Resolve(context.Background(), request("GET", "http://www.example.com/?p=10"), hello()); !ok {
		t.Error("expected a redirect with plain permalinks")
	}
}

var plainTests = [...]struct {
	req      string
	q        func() *canonical.Query
	location string
}{
	0: {
		req: "http://example.com/?feed=rss",
		q: func() *canonical.Query {
			q := home()
			q.Feed = true
			q.Vars = vars("feed", "rss")
			return q
		},
		location: "http://example.com/?feed=rss2",
	},
	1: {
		req: "http://example.com/?p=10).",
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("p", "10")
			return q
		},
		location: "http://example.com/?p=10",
	},
	2: {
		req:      "http://example.com/?cat=&x=1",
		q:        home,
		location: "http://example.com/?x=1",
	},
	3: {
		req: "http://example.com/?p=10",
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("p", "10")
			return q
		},
	},
	4: {
		req: "http://example.com/index.php?p=10",
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("p", "10")
			return q
		},
		location: "http://example.com/?p=10",
	},
}

func TestResolvePlain(t *testing.T) {
	r := canonical.New(prettySite, canonical.Rewrite{}, newEntities())
	for i, tc := range plainTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			rd, ok := r.Resolve(context.Background(), request("GET", tc.req), tc.q())
			switch {
			case tc.location == "" && ok:
				t.Errorf("unexpected redirect to %q", rd.Location)
			case tc.location != "" && !ok:
				t.Errorf("expected redirect to %q, got none", tc.location)
			case rd.Location != tc.location:
				t.Errorf("wrong location: want=%q, got=%q", tc.location, rd.Location)
			}
		})
	}
}
