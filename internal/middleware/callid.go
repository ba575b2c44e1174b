// Package middleware provides HTTP middleware for CallScope.
package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantagevoice/callscope/internal/logger"
)

// CallID is HTTP middleware that copies the {callID} route parameter
// into the request context so log records emitted further down the
// stack carry it.
func CallID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chi.URLParam(r, "callID"); id != "" {
			r = r.WithContext(logger.WithCallID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
