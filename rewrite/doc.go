// Package rewrite matches request paths against an ordered list of rewrite
// rules and returns the query variables they map to.
//
//	rules := rewrite.New(
//		rewrite.Add("/robots.txt", "robots", "1"),
//		rewrite.Add("/category/{category_name path}/page/{paged uint}"),
//		rewrite.Add("/{year uint}/{monthnum uint}/{name string}"),
//	)
//	m, ok := rules.Match("/2019/01/hello/")
//	// m.Vars: map[monthnum:01 name:hello year:2019]
//
// Rule Components
//
// Patterns are slash separated lists of components.
// Static components must match a path segment exactly.
// Variable components comprise an optional name, followed by a type:
//
//     int    eg. -1, 1
//     uint   eg. 0, 1
//     string eg. anything ({string} is the same as {})
//     path   eg. parent/child (one or more segments)
//     a|b|c  eg. one of the listed values
//
// A variable may be surrounded by static text within the same segment:
//
//     /comment-page-{cpage uint}
//     /{name string}.html
//
// Values are captured as the raw path text; typed components only validate.
//
// Path components consume as few segments as possible.
// If the rest of the rule fails to match, the path component is extended one
// segment at a time until the rule matches or runs out of segments, so
//
//     /{pagename path}/{page uint}
//
// matches /parent/child/2 with pagename "parent/child" and page "2".
//
// Rules are tried in the order they were added and the first match wins.
// Registering the same pattern twice, an invalid type, or a variable name used
// twice in one pattern panics.
//
// Generated Rules
//
// Generate builds the rule set of a site from its permalink structure: feeds
// and pagination of the home page, comment feeds, search, term and author
// archives, date archives, posts with their sub-page, comment page, feed and
// attachment endpoints, and finally nested pages.
package rewrite // import "code.soquee.net/canonical/rewrite"
