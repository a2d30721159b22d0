// Package proxy forwards passthrough requests to the application the gate
// protects. Adapted from the teacher's single-purpose upstream-RPC proxy
// into a generic reverse proxy: the gate fronts arbitrary web applications,
// not only a JSON-RPC endpoint.
package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// Upstream is a reverse proxy that forwards requests to a protected
// application. It strips client-identifying and payment-protocol headers
// before forwarding, so the upstream never sees how the gate classified
// the request.
type Upstream struct {
	proxy *httputil.ReverseProxy
}

// New creates a reverse proxy targeting upstreamURL.
func New(upstreamURL string) (*Upstream, error) {
	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, err
	}

	rp := httputil.NewSingleHostReverseProxy(target)

	base := rp.Director
	rp.Director = func(req *http.Request) {
		base(req)
		// Strip headers that could identify or correlate the originating
		// client.
		req.Header.Del("X-Forwarded-For")
		req.Header.Del("X-Forwarded-Host")
		req.Header.Del("X-Forwarded-Proto")
		req.Header.Del("X-Real-Ip")
		req.Header.Del("Forwarded")
		req.Header.Del("Via")
		// Strip the gate's own protocol headers — upstream must not see
		// how the request was classified or authenticated.
		req.Header.Del("X-Agent-Key")
		stripVerifiedCookie(req)
		// Force the Host header to match the upstream to avoid leaking the
		// client's original Host and to prevent host-header routing issues.
		req.Host = target.Host
	}

	rp.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, err error) {
		slog.Error("upstream error", "err", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}

	return &Upstream{proxy: rp}, nil
}

// ServeHTTP forwards the request to the upstream application.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	u.proxy.ServeHTTP(w, req)
}

// stripVerifiedCookie removes only the gate's own challenge cookie from
// the forwarded Cookie header, leaving any application cookies intact.
func stripVerifiedCookie(req *http.Request) {
	header := req.Header.Get("Cookie")
	if header == "" {
		return
	}
	var kept []string
	for _, part := range strings.Split(header, ";") {
		trimmed := strings.TrimSpace(part)
		if strings.HasPrefix(trimmed, "__agp_verified=") {
			continue
		}
		if trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	if len(kept) == 0 {
		req.Header.Del("Cookie")
		return
	}
	req.Header.Set("Cookie", strings.Join(kept, "; "))
}
