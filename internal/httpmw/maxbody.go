package httpmw

import "net/http"

// MaxBody caps request bodies site-wide. Reading past the cap fails with
// *http.MaxBytesError, which handlers turn into 413. Handlers with a
// tighter limit of their own still apply it.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
