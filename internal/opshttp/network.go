package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/1a11/billard/internal/log"
)

// requireNonPublicNetwork refuses peers outside loopback, private and
// link-local ranges. The admin port should never be exposed, this catches
// the case where it is.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peer, ok := peerAddr(r.RemoteAddr)
		if !ok || !(peer.IsLoopback() || peer.IsPrivate() || peer.IsLinkLocalUnicast()) {
			L.Warn(r.Context(), "admin request from public network refused",
				"remote_addr", r.RemoteAddr,
				"url.path", r.URL.Path,
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func peerAddr(remote string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return netip.Addr{}, false
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}
