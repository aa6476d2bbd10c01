package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"none", "", false},
		{"propagated", "abc-123_x.y", true},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"log injection", "abc\nlevel=ERROR", false},
		{"quotes", `a"b`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.incoming != "" {
				r.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("context %q, header %q", seen, rec.Header().Get(RequestIDHeader))
			}
			if (seen == tt.incoming) != tt.keep {
				t.Fatalf("id = %q, incoming %q, keep %v", seen, tt.incoming, tt.keep)
			}
			if !tt.keep && len(seen) != 32 {
				t.Fatalf("minted id %q should be 32 hex chars", seen)
			}
		})
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	if id := RequestIDFromContext(t.Context()); id != "" {
		t.Fatalf("id = %q", id)
	}
}
