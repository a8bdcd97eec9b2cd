package canonical_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"code.soquee.net/canonical"
)

type classifierFunc func(ctx context.Context, r *http.Request) (*canonical.Query, error)

func (f classifierFunc) Classify(ctx context.Context, r *http.Request) (*canonical.Query, error) {
	return f(ctx, r)
}

func fixed(q func() *canonical.Query) canonical.Classifier {
	return classifierFunc(func(context.Context, *http.Request) (*canonical.Query, error) {
		return q(), nil
	})
}

var handlerTests = [...]struct {
	req      string
	q        func() *canonical.Query
	next     http.HandlerFunc
	code     int
	location string
}{
	0: {
		req:      "http://www.example.com/2019/01/hello/",
		q:        hello,
		code:     http.StatusMovedPermanently,
		location: "http://example.com/2019/01/hello/",
	},
	1: {
		req:  "http://example.com/2019/01/hello/",
		q:    hello,
		code: http.StatusOK,
	},
	2: {
		req: "http://example.com/nothing/",
		q: func() *canonical.Query {
			return &canonical.Query{NotFound: true, Vars: vars()}
		},
		code: http.StatusNotFound,
	},
	3: {
		req: "http://example.com/nothing/",
		q: func() *canonical.Query {
			return &canonical.Query{NotFound: true, Vars: vars()}
		},
		next: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGone)
		},
		code: http.StatusGone,
	},
	4: {
		req: "http://example.com/?p=10",
		q: func() *canonical.Query {
			q := hello()
			q.Vars = vars("p", "10")
			return q
		},
		code:     http.StatusMovedPermanently,
		location: "http://example.com/2019/01/hello/",
	},
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	_, err := w.Write([]byte("Test"))
	if err != nil {
		panic(err)
	}
}

func TestHandler(t *testing.T) {
	for i, tc := range handlerTests {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			next := tc.next
			if next == nil {
				next = okHandler
			}
			h := canonical.NewHandler(newResolver(), fixed(tc.q), next)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", tc.req, nil))
			if rec.Code != tc.code {
				t.Errorf("wrong status code: want=%d, got=%d", tc.code, rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != tc.location {
				t.Errorf("wrong location: want=%q, got=%q", tc.location, loc)
			}
		})
	}
}

func TestHandlerQueryInContext(t *testing.T) {
	var got *canonical.Query
	h := canonical.NewHandler(newResolver(), fixed(hello), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = canonical.QueryFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "http://example.com/2019/01/hello/", nil))
	if got == nil || got.Kind != canonical.KindPost || got.ObjectID != 10 {
		t.Errorf("wrong query in context: %+v", got)
	}

	if q := canonical.QueryFromContext(context.Background()); q != nil {
		t.Errorf("expected no query on an empty context, got %+v", q)
	}
}

func TestHandlerDisabled(t *testing.T) {
	h := canonical.NewHandler(newResolver(), fixed(hello), http.HandlerFunc(okHandler))
	if !h.Enabled() {
		t.Fatal("handlers start enabled")
	}
	h.SetEnabled(false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "http://www.example.com/2019/01/hello/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("disabled handler redirected: code=%d, location=%q", rec.Code, rec.Header().Get("Location"))
	}

	h.SetEnabled(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "http://www.example.com/2019/01/hello/", nil))
	if rec.Code != http.StatusMovedPermanently {
		t.Errorf("re-enabled handler did not redirect: code=%d", rec.Code)
	}
}

func TestHandlerClassifyError(t *testing.T) {
	var called bool
	classify := classifierFunc(func(context.Context, *http.Request) (*canonical.Query, error) {
		return nil, errors.New("store unavailable")
	})
	h := canonical.NewHandler(newResolver(), classify, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if canonical.QueryFromContext(r.Context()) != nil {
			t.Error("unexpected query in context")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "http://www.example.com/", nil))
	if !called {
		t.Error("next handler was not called")
	}
}

func TestHandlerDefaultNext(t *testing.T) {
	h := canonical.NewHandler(newResolver(), fixed(hello), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "http://example.com/2019/01/hello/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("wrong status code: want=%d, got=%d", http.StatusNotFound, rec.Code)
	}
}
