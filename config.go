package canonical

import (
	"slices"
	"strings"
)

// SlashType names the kind of link a trailing slash decision is made for.
type SlashType string

// Trailing slash types.
const (
	SlashNone        SlashType = ""
	SlashSingle      SlashType = "single"
	SlashSinglePaged SlashType = "single_paged"
	SlashSingleFeed  SlashType = "single_feed"
	SlashPage        SlashType = "page"
	SlashPaged       SlashType = "paged"
	SlashFeed        SlashType = "feed"
	SlashCategory    SlashType = "category"
	SlashDay         SlashType = "day"
	SlashMonth       SlashType = "month"
	SlashYear        SlashType = "year"
	SlashHome        SlashType = "home"
	SlashCommentPage SlashType = "commentpaged"
)

// Rewrite describes how a site lays out its pretty permalinks.
//
// The zero value describes a site with plain (query string) permalinks and
// the default base segment names.
type Rewrite struct {
	// Structure is the permalink template for posts, eg.
	// "/%year%/%monthnum%/%postname%/".
	// An empty structure disables pretty permalinks.
	Structure string `yaml:"structure" json:"structure"`

	// Index is the front controller segment, eg. "index.php".
	// Structures starting with it are PATHINFO style permalinks.
	Index string `yaml:"index" json:"index"`

	PaginationBase         string `yaml:"pagination_base" json:"pagination_base"`
	FeedBase               string `yaml:"feed_base" json:"feed_base"`
	CommentsBase           string `yaml:"comments_base" json:"comments_base"`
	CommentsPaginationBase string `yaml:"comments_pagination_base" json:"comments_pagination_base"`
	CategoryBase           string `yaml:"category_base" json:"category_base"`
	TagBase                string `yaml:"tag_base" json:"tag_base"`
	AuthorBase             string `yaml:"author_base" json:"author_base"`
	SearchBase             string `yaml:"search_base" json:"search_base"`

	// Feeds lists the feed names the site serves.
	Feeds []string `yaml:"feeds" json:"feeds"`
	// DefaultFeed is the feed served when no explicit format is named.
	DefaultFeed string `yaml:"default_feed" json:"default_feed"`

	// TrailingSlashes overrides the trailing slash convention for individual
	// link types.
	// Types that are not present follow the permalink structure: slashed if
	// the structure ends in a slash.
	TrailingSlashes map[SlashType]bool `yaml:"trailing_slashes" json:"trailing_slashes"`
}

// WithDefaults returns a copy of rw with every unset base segment filled in.
func (rw Rewrite) WithDefaults() Rewrite {
	set := func(s *string, def string) {
		if *s == "" {
			*s = def
		}
	}
	set(&rw.Index, "index.php")
	set(&rw.PaginationBase, "page")
	set(&rw.FeedBase, "feed")
	set(&rw.CommentsBase, "comments")
	set(&rw.CommentsPaginationBase, "comment-page")
	set(&rw.CategoryBase, "category")
	set(&rw.TagBase, "tag")
	set(&rw.AuthorBase, "author")
	set(&rw.SearchBase, "search")
	set(&rw.DefaultFeed, "rss2")
	if len(rw.Feeds) == 0 {
		rw.Feeds = []string{"feed", "rdf", "rss", "rss2", "atom"}
	}
	return rw
}

// UsingPermalinks reports whether pretty permalinks are enabled.
func (rw Rewrite) UsingPermalinks() bool {
	return rw.Structure != ""
}

// UsingIndexPermalinks reports whether permalinks are routed through the index
// segment (eg. /index.php/2019/01/hello/).
func (rw Rewrite) UsingIndexPermalinks() bool {
	if rw.Structure == "" || rw.Index == "" {
		return false
	}
	return strings.HasPrefix(strings.TrimLeft(rw.Structure, "/"), rw.Index)
}

// Root is the prefix every pretty permalink starts with.
func (rw Rewrite) Root() string {
	if rw.UsingIndexPermalinks() {
		return rw.Index + "/"
	}
	return ""
}

// Front is the static part of the permalink structure before its first tag.
func (rw Rewrite) Front() string {
	idx := strings.IndexByte(rw.Structure, '%')
	if idx == -1 {
		return rw.Structure
	}
	return rw.Structure[:idx]
}

// DateStructure returns the permalink template for day archives or the empty
// string if dates are only reachable by query string.
// If the post id tag appears among the first three tags of the post
// structure, date archives move under "date/" to keep the two apart.
func (rw Rewrite) DateStructure() string {
	if rw.Structure == "" {
		return ""
	}
	front := rw.Front()
	s := rw.Structure
	for i := 1; i <= 3; i++ {
		start := strings.IndexByte(s, '%')
		if start == -1 {
			break
		}
		end := strings.IndexByte(s[start+1:], '%')
		if end == -1 {
			break
		}
		if s[start:start+end+2] == "%post_id%" {
			front += "date/"
			break
		}
		s = s[start+end+2:]
	}
	return front + "%year%/%monthnum%/%day%"
}

// SupportsFeed reports whether name is one of the configured feeds.
func (rw Rewrite) SupportsFeed(name string) bool {
	return slices.Contains(rw.Feeds, name)
}

// Slashed reports whether links of type t end in a slash.
func (rw Rewrite) Slashed(t SlashType) bool {
	if v, ok := rw.TrailingSlashes[t]; ok {
		return v
	}
	return strings.HasSuffix(rw.Structure, "/")
}

// UserTrailingSlash adds or removes the trailing slash of s following the
// convention for links of type t.
func (rw Rewrite) UserTrailingSlash(s string, t SlashType) string {
	if rw.Slashed(t) {
		return TrailingSlash(s)
	}
	return UntrailingSlash(s)
}

// TrailingSlash returns s with exactly one trailing slash.
func TrailingSlash(s string) string {
	return UntrailingSlash(s) + "/"
}

// UntrailingSlash returns s without any trailing forward or back slashes.
func UntrailingSlash(s string) string {
	return strings.TrimRight(s, `/\`)
}

// Front page display modes.
const (
	ShowPosts = "posts"
	ShowPage  = "page"
)

// Comment page ordering.
const (
	CommentsNewest = "newest"
	CommentsOldest = "oldest"
)

// Site holds the settings of the site requests are canonicalized for.
type Site struct {
	// Home is the canonical home URL including scheme, host, optional port and
	// optional path.
	Home string `yaml:"home" json:"home"`

	// ShowOnFront is either ShowPosts (the front page lists posts) or ShowPage
	// (a static page is the front page).
	ShowOnFront  string `yaml:"show_on_front" json:"show_on_front"`
	PageOnFront  int64  `yaml:"page_on_front" json:"page_on_front"`
	PageForPosts int64  `yaml:"page_for_posts" json:"page_for_posts"`

	// PageComments enables comment pagination.
	PageComments bool `yaml:"page_comments" json:"page_comments"`
	// DefaultCommentsPage is CommentsNewest or CommentsOldest.
	DefaultCommentsPage string `yaml:"default_comments_page" json:"default_comments_page"`

	// Multisite selects SignupURL over RegistrationURL for legacy registration
	// links.
	Multisite       bool   `yaml:"multisite" json:"multisite"`
	RegistrationURL string `yaml:"registration_url" json:"registration_url"`
	SignupURL       string `yaml:"signup_url" json:"signup_url"`

	// PermalinksUnsupported is set when the web server in front of the site
	// cannot route pretty permalinks.
	PermalinksUnsupported bool `yaml:"permalinks_unsupported" json:"permalinks_unsupported"`
}

// WithDefaults returns a copy of s with unset settings filled in.
func (s Site) WithDefaults() Site {
	if s.ShowOnFront == "" {
		s.ShowOnFront = ShowPosts
	}
	if s.DefaultCommentsPage == "" {
		s.DefaultCommentsPage = CommentsNewest
	}
	home := UntrailingSlash(s.Home)
	if s.RegistrationURL == "" {
		s.RegistrationURL = home + "/wp-login.php?action=register"
	}
	if s.SignupURL == "" {
		s.SignupURL = home + "/wp-signup.php"
	}
	return s
}
