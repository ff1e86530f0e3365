package middleware

import (
	"net/http"
	"strings"
	"time"
)

// RequestObserver receives one observation per completed request.
type RequestObserver interface {
	ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// Metrics reports each request to obs, labelled with the ServeMux pattern
// that matched it. It must wrap the mux directly so the pattern is visible.
func Metrics(obs RequestObserver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)
		obs.ObserveRequest(routeLabel(r.Pattern), r.Method, rec.status, time.Since(start))
	})
}

// routeLabel strips the method from a pattern such as "POST /api/users/login".
// Unmatched requests share one label to keep cardinality bounded.
func routeLabel(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
