package canonical

import (
	"context"
	"net/http"
	"sync/atomic"

	slogcontext "github.com/veqryn/slog-context"
)

// ctxQuery is a type used as the context key when storing the classified query
// on the HTTP context for handlers further down the chain.
type ctxQuery struct{}

// NewContext returns a copy of ctx that carries q.
func NewContext(ctx context.Context, q *Query) context.Context {
	return context.WithValue(ctx, ctxQuery{}, q)
}

// QueryFromContext returns the query stored on ctx by the Handler or nil if no
// query was stored.
func QueryFromContext(ctx context.Context) *Query {
	q, _ := ctx.Value(ctxQuery{}).(*Query)
	return q
}

// Handler is an HTTP middleware that issues canonical redirects.
//
// Each request is classified, resolved and either permanently redirected to
// its canonical URL or passed on to the next handler with the query available
// through QueryFromContext.
// Requests that matched nothing are passed on with a default status of 404.
type Handler struct {
	resolver   *Resolver
	classifier Classifier
	next       http.Handler
	disabled   atomic.Bool
}

// NewHandler returns a Handler in front of next.
func NewHandler(r *Resolver, c Classifier, next http.Handler) *Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return &Handler{
		resolver:   r,
		classifier: c,
		next:       next,
	}
}

// SetEnabled turns canonical redirects on or off.
// Classification is performed either way.
func (h *Handler) SetEnabled(enabled bool) {
	h.disabled.Store(!enabled)
}

// Enabled reports whether canonical redirects are issued.
func (h *Handler) Enabled() bool {
	return !h.disabled.Load()
}

// ServeHTTP classifies and resolves the request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := h.classifier.Classify(ctx, r)
	if err != nil {
		slogcontext.FromCtx(ctx).WarnContext(ctx, "classifying request failed", "url", r.URL.String(), "error", err)
		h.next.ServeHTTP(w, r)
		return
	}

	if h.Enabled() {
		if rd, ok := h.resolver.Resolve(ctx, NewRequest(r), q); ok {
			slogcontext.FromCtx(ctx).InfoContext(ctx, "canonical redirect",
				"requested", r.URL.String(), "location", rd.Location, "immediate", rd.Immediate)
			http.Redirect(w, r, rd.Location, rd.Status)
			return
		}
	}

	r = r.WithContext(NewContext(ctx, q))
	if q.NotFound {
		notFoundHandler(h.next).ServeHTTP(w, r)
		return
	}
	h.next.ServeHTTP(w, r)
}
