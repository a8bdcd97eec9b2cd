// Package canonical computes canonical redirects for the URLs of a content
// site.
//
// A site publishes every post, page and archive under exactly one canonical
// URL, but the same content is usually reachable in many other ways: by query
// string (/?p=10), under an alternate host (www.example.com), with missing or
// extra trailing slashes, with pasted punctuation on the end, through retired
// feed scripts, or with a mistyped slug.
// The Resolver takes what a request matched and decides whether it should be
// permanently redirected, and where.
//
//	r := canonical.New(site, rewrite, entities, canonical.Guess(guesser))
//	rd, ok := r.Resolve(ctx, canonical.NewRequest(req), query)
//	if ok {
//		http.Redirect(w, req, rd.Location, rd.Status)
//	}
//
// A redirect is only returned if resolving its own location does not propose
// a further redirect, so following one never leads into a chain or loop.
//
// Queries
//
// The resolver does not parse requests itself.
// A Classifier turns an incoming request into a Query describing the matched
// content, its query variables and flags such as Feed or NotFound, and the
// Entities collaborator answers the lookups the resolver needs to compute
// permalinks.
// Package classify provides a classifier driven by the rewrite rules of the
// site and package store a sqlite backed implementation of both collaborators.
//
// Middleware
//
// Handler wraps the resolver into HTTP middleware.
// Requests are classified and either redirected or passed on, with the query
// available to later handlers through QueryFromContext.
// Requests that matched nothing are passed on with a default status of 404:
//
//	h := canonical.NewHandler(resolver, classifier, siteHandler)
//	http.ListenAndServe(":8080", h)
//
// Redirects can be switched off at runtime with SetEnabled, which is what the
// update checker in package update does once the host platform no longer
// needs them.
//
// Normalization
//
// Only the parts of a URL the resolver deliberately rewrites change.
// The path and query string are otherwise kept exactly as requested, including
// the case of percent encoded octets, so that a redirect never introduces a
// second layer of encoding.
// Hosts are compared in their lowercased ASCII form and only a leading "www."
// is ever added or removed; a request for an unrelated host keeps its host.
//
// Veto hooks registered with Filter see every computed redirect and may replace
// or cancel it.
package canonical // import "code.soquee.net/canonical"
