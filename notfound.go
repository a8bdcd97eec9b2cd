package canonical

import (
	"net/http"
)

// defCodeWriter is an http.ResponseWriter that writes the given status code by
// default instead of always defaulting to a 200.
type defCodeWriter struct {
	http.ResponseWriter
	code  int
	wrote bool
}

func (w *defCodeWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(w.code)
	}
	return w.ResponseWriter.Write(p)
}

func (w *defCodeWriter) WriteHeader(statusCode int) {
	if w.wrote {
		return
	}
	w.wrote = true
	w.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap returns the underlying writer for http.ResponseController.
func (w *defCodeWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// notFoundHandler serves h with a default status of 404 for content that
// matched nothing.
func notFoundHandler(h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(&defCodeWriter{
			ResponseWriter: w,
			code:           http.StatusNotFound,
		}, r)
	}
}
