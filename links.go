package canonical

import (
	"fmt"
	"strconv"
	"strings"
)

// Links builds the canonical links of archives and feeds for a site.
type Links struct {
	Site    Site
	Rewrite Rewrite
}

// Home returns the home URL with path appended.
// An empty path returns the home URL as configured.
func (l Links) Home(path string) string {
	home := UntrailingSlash(l.Site.Home)
	if path == "" {
		return l.Site.Home
	}
	return home + "/" + strings.TrimLeft(path, "/")
}

// dateLink expands the date structure with its day and month tags removed as
// requested and falls back to the m query variable.
func (l Links) dateLink(t SlashType, year, month, day int64) string {
	m := fmt.Sprintf("%d", year)
	switch t {
	case SlashMonth:
		m += fmt.Sprintf("%02d", month)
	case SlashDay:
		m += fmt.Sprintf("%02d%02d", month, day)
	}
	s := l.Rewrite.DateStructure()
	if s == "" {
		return l.Home("?m=" + m)
	}
	if t != SlashDay {
		s = strings.ReplaceAll(s, "%day%", "")
	}
	if t == SlashYear {
		s = strings.ReplaceAll(s, "%monthnum%", "")
	}
	s = strings.NewReplacer(
		"%year%", strconv.FormatInt(year, 10),
		"%monthnum%", fmt.Sprintf("%02d", month),
		"%day%", fmt.Sprintf("%02d", day),
	).Replace(s)
	s = collapseSlashes(s)
	return l.Home(l.Rewrite.UserTrailingSlash(s, t))
}

// Year returns the archive link of year.
func (l Links) Year(year int64) string {
	return l.dateLink(SlashYear, year, 0, 0)
}

// Month returns the archive link of a month.
func (l Links) Month(year, month int64) string {
	return l.dateLink(SlashMonth, year, month, 0)
}

// Day returns the archive link of a day.
func (l Links) Day(year, month, day int64) string {
	return l.dateLink(SlashDay, year, month, day)
}

// feedName normalizes the name of a requested feed.
// The generic "feed" name and the empty string both mean the default feed.
func (l Links) feedName(feed string) string {
	if feed == "" || feed == "feed" {
		return l.Rewrite.DefaultFeed
	}
	return feed
}

// Feed returns the link of the site wide feed.
// Feeds named with a "comments_" prefix are comment feeds.
func (l Links) Feed(feed string) string {
	if !l.Rewrite.UsingPermalinks() {
		feed = l.feedName(feed)
		feed = strings.Replace(feed, "comments_", "comments-", 1)
		return l.Home("?feed=" + feed)
	}

	base := l.Rewrite.Root() + l.Rewrite.FeedBase + "/"
	if strings.Contains(feed, "comments_") {
		feed = strings.Replace(feed, "comments_", "", 1)
		base = l.Rewrite.Root() + l.Rewrite.CommentsBase + "/" + l.Rewrite.FeedBase + "/"
	}
	if l.feedName(feed) == l.Rewrite.DefaultFeed {
		feed = ""
	}
	link := collapseSlashes("/" + base + feed)
	return l.Home(l.Rewrite.UserTrailingSlash(link, SlashFeed))
}

// PostCommentsFeed returns the link of the comments feed of post, whose
// canonical link is permalink.
func (l Links) PostCommentsFeed(post *Post, permalink, feed string) string {
	feed = l.feedName(feed)
	unattached := post.Type == TypeAttachment && post.Parent == 0
	id := strconv.FormatInt(post.ID, 10)

	if !l.Rewrite.UsingPermalinks() {
		home := l.Home("/")
		switch {
		case unattached:
			return home + "?feed=" + rawurlencode(feed) + "&attachment_id=" + id
		case post.Type == TypePage:
			return home + "?feed=" + rawurlencode(feed) + "&page_id=" + id
		}
		return home + "?feed=" + rawurlencode(feed) + "&p=" + id
	}

	if unattached {
		link := l.Home("/feed/")
		if feed != l.Rewrite.DefaultFeed {
			link += feed + "/"
		}
		return link + "?attachment_id=" + id
	}
	link := TrailingSlash(permalink) + "feed"
	if feed != l.Rewrite.DefaultFeed {
		link += "/" + feed
	}
	return l.Rewrite.UserTrailingSlash(link, SlashSingleFeed)
}

// Registration returns the canonical registration page of the site.
func (l Links) Registration() string {
	if l.Site.Multisite {
		return l.Site.SignupURL
	}
	return l.Site.RegistrationURL
}

// legacyFeeds maps the file names of pre permalink feed scripts to the feed
// they served.
// The empty feed is the default one.
var legacyFeeds = map[string]string{
	"wp-atom.php":         "atom",
	"wp-commentsrss2.php": "comments_rss2",
	"wp-feed.php":         "",
	"wp-rdf.php":          "rdf",
	"wp-rss.php":          "rss2",
	"wp-rss2.php":         "rss2",
}

// legacyRegistration is the file name of the retired registration page.
const legacyRegistration = "wp-register.php"
