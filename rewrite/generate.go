package rewrite

import (
	"strings"

	"code.soquee.net/canonical"
)

// Taxonomy describes a custom taxonomy with pretty archive links.
type Taxonomy struct {
	// Name is the name of the taxonomy, eg. "genre".
	Name string `yaml:"name" json:"name"`
	// QueryVar is the query variable holding the term slug.
	// It defaults to the name.
	QueryVar string `yaml:"query_var" json:"query_var"`
	// Slug is the base segment of term archives.
	// It defaults to the name.
	Slug string `yaml:"slug" json:"slug"`
	// Hierarchical taxonomies match nested term paths.
	Hierarchical bool `yaml:"hierarchical" json:"hierarchical"`
}

// structureTags maps permalink structure tags to rule components.
var structureTags = map[string]string{
	"%year%":     "{year uint}",
	"%monthnum%": "{monthnum uint}",
	"%day%":      "{day uint}",
	"%hour%":     "{hour uint}",
	"%minute%":   "{minute uint}",
	"%second%":   "{second uint}",
	"%postname%": "{name string}",
	"%post_id%":  "{p uint}",
	"%category%": "{category_name path}",
	"%author%":   "{author_name string}",
	"%pagename%": "{pagename path}",
	"%tag%":      "{tag string}",
}

// Pattern converts a permalink structure into a rule pattern.
// Each segment may hold at most one tag, optionally surrounded by static text;
// text after a second tag in the same segment is matched literally.
func Pattern(structure string) string {
	var parts []string
	for _, seg := range split(structure) {
		start := strings.IndexByte(seg, '%')
		if start != -1 {
			if end := strings.IndexByte(seg[start+1:], '%'); end != -1 {
				tag := seg[start : start+end+2]
				if c, ok := structureTags[tag]; ok {
					seg = seg[:start] + c + seg[start+len(tag):]
				}
			}
		}
		parts = append(parts, seg)
	}
	return "/" + strings.Join(parts, "/")
}

type generator struct {
	rw    canonical.Rewrite
	root  string
	feeds string
	seen  map[string]struct{}
	opts  []Option
}

// add registers a rule below the permalink root unless an identical pattern
// was generated before.
func (g *generator) add(pattern string, fixed ...string) {
	pattern = "/" + strings.Trim(g.root+strings.Trim(pattern, "/"), "/")
	if _, ok := g.seen[pattern]; ok {
		return
	}
	g.seen[pattern] = struct{}{}
	g.opts = append(g.opts, Add(pattern, fixed...))
}

// relative converts a structure to a pattern relative to the permalink root.
func (g *generator) relative(structure string) string {
	structure = strings.TrimPrefix(structure, "/")
	structure = strings.TrimPrefix(structure, g.rw.Root())
	return strings.Trim(Pattern(structure), "/")
}

// archive registers the feed and pagination endpoints of a listing followed by
// the listing itself.
func (g *generator) archive(base string, fixed ...string) {
	g.add(base+"/"+g.rw.FeedBase+"/"+g.feeds, fixed...)
	g.add(base+"/"+g.feeds, fixed...)
	g.add(base+"/"+g.rw.PaginationBase+"/{paged uint}", fixed...)
	g.add(base, fixed...)
}

// singular registers the endpoints of a singular permalink followed by the
// permalink itself.
func (g *generator) singular(base string) {
	rw := g.rw
	attachment := base + "/attachment/{attachment string}"
	g.add(attachment+"/trackback", "tb", "1")
	g.add(attachment+"/"+rw.FeedBase+"/"+g.feeds)
	g.add(attachment + "/" + g.feeds)
	g.add(attachment + "/" + rw.CommentsPaginationBase + "-{cpage uint}")
	g.add(attachment)

	g.add(base+"/trackback", "tb", "1")
	g.add(base + "/" + rw.FeedBase + "/" + g.feeds)
	g.add(base + "/" + g.feeds)
	g.add(base + "/" + rw.PaginationBase + "/{paged uint}")
	g.add(base + "/" + rw.CommentsPaginationBase + "-{cpage uint}")
	g.add(base + "/{page uint}")
	g.add(base)
}

// Generate builds the rule set of a permalink structure.
// Sites without pretty permalinks get an empty rule set.
func Generate(rw canonical.Rewrite, taxonomies ...Taxonomy) *Rules {
	rw = rw.WithDefaults()
	if !rw.UsingPermalinks() {
		return New()
	}
	g := &generator{
		rw:    rw,
		feeds: "{feed " + strings.Join(rw.Feeds, "|") + "}",
		seen:  make(map[string]struct{}),
	}

	g.add("robots.txt", "robots", "1")
	for _, name := range []string{"wp-atom.php", "wp-rdf.php", "wp-rss.php", "wp-rss2.php", "wp-feed.php", "wp-commentsrss2.php"} {
		g.add(name, "feed", "old")
	}
	g.add("wp-register.php", "register", "true")

	g.root = rw.Root()
	g.add(rw.FeedBase+"/"+g.feeds)
	g.add(g.feeds)
	g.add(rw.PaginationBase + "/{paged uint}")

	g.add(rw.CommentsBase+"/"+rw.FeedBase+"/"+g.feeds, "withcomments", "1")
	g.add(rw.CommentsBase+"/"+g.feeds, "withcomments", "1")
	g.add(rw.CommentsBase + "/" + rw.PaginationBase + "/{paged uint}")

	g.archive(rw.SearchBase + "/{s path}")

	front := g.relative(rw.Front())
	if front != "" {
		front += "/"
	}
	g.archive(front + rw.CategoryBase + "/{category_name path}")
	g.archive(front + rw.TagBase + "/{tag string}")
	for _, t := range taxonomies {
		qv, slug := t.QueryVar, t.Slug
		if qv == "" {
			qv = t.Name
		}
		if slug == "" {
			slug = t.Name
		}
		typ := "string"
		if t.Hierarchical {
			typ = "path"
		}
		g.archive(front + slug + "/{" + qv + " " + typ + "}")
	}

	g.archive(front + rw.AuthorBase + "/{author_name string}")

	date := g.relative(rw.DateStructure())
	g.archive(date)
	g.archive(strings.TrimSuffix(date, "/{day uint}"))
	g.archive(strings.TrimSuffix(date, "/{monthnum uint}/{day uint}"))

	g.singular(g.relative(rw.Structure))
	g.singular("{pagename path}")

	return New(g.opts...)
}
