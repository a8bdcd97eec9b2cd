package canonical_test

import (
	"strconv"
	"testing"

	"code.soquee.net/canonical"
)

var pageNumTests = [...]struct {
	links   canonical.Links
	link    string
	request string
	page    int
	want    string
}{
	0: {
		links:   prettyLinks,
		link:    "http://example.com/category/news/",
		request: "/category/news/",
		page:    2,
		want:    "http://example.com/category/news/page/2/",
	},
	1: {
		links:   prettyLinks,
		link:    "http://example.com/category/news/",
		request: "/category/news/page/3/?orderby=date",
		page:    1,
		want:    "http://example.com/category/news/?orderby=date",
	},
	2: {
		links:   prettyLinks,
		link:    "http://example.com/category/news/",
		request: "/category/news/page/3/?paged=3",
		page:    4,
		want:    "http://example.com/category/news/page/4/",
	},
	3: {
		links:   plainLinks,
		link:    "http://example.com/?cat=2&paged=2",
		request: "/?cat=2",
		page:    2,
		want:    "http://example.com/?cat=2&paged=2",
	},
	4: {
		links:   prettyLinks,
		link:    "http://example.com/",
		request: "/",
		page:    2,
		want:    "http://example.com/page/2/",
	},
}

func TestPageNumLink(t *testing.T) {
	for i, tc := range pageNumTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			if got := tc.links.PageNumLink(tc.link, tc.request, tc.page); got != tc.want {
				t.Errorf("want=%q, got=%q", tc.want, got)
			}
		})
	}
}

func TestPageNumFromPath(t *testing.T) {
	for in, want := range map[string]string{
		"/a/b/3/":   "3",
		"/a/b":      "",
		"/x/page12": "page12",
		"/":         "",
	} {
		if got := canonical.PageNumFromPath(in); got != want {
			t.Errorf("PageNumFromPath(%q): want=%q, got=%q", in, want, got)
		}
	}
}
