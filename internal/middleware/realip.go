package middleware

import (
	"net/http"
	"net/netip"
	"strings"
)

// RealIP replaces r.RemoteAddr with the client address taken from
// X-Forwarded-For or X-Real-IP, but only when the request came from one of
// the trusted proxies. Anyone can put any address in those headers, so
// without a trusted peer the connection address is kept. The login rate
// limiter and the request log both key on the result.
//
// X-Forwarded-For reads "client, proxy1, proxy2": each proxy appends the
// address it received the request from. The client is the rightmost hop
// that is not itself a trusted proxy; everything left of it was supplied
// by the caller.
func RealIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, ok := forwardedClient(r, trusted); ok {
				r.RemoteAddr = ip.String()
			}
			next.ServeHTTP(w, r)
		})
	}
}

func forwardedClient(r *http.Request, trusted []netip.Prefix) (netip.Addr, bool) {
	peer, ok := parseRemote(r.RemoteAddr)
	if !ok || !isTrusted(peer, trusted) {
		return netip.Addr{}, false
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return netip.Addr{}, false
			}
			hop = hop.Unmap()
			if i == 0 || !isTrusted(hop, trusted) {
				return hop, true
			}
		}
	}

	if hop, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return hop.Unmap(), true
	}
	return netip.Addr{}, false
}

// parseRemote reads RemoteAddr, which is "ip:port" from net/http but a bare
// address in tests and behind some listeners.
func parseRemote(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
