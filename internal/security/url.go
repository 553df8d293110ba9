// Package security guards the trust boundary around external web content:
// SSRF protection for outbound fetches of search result pages, and
// scrubbing of fetched text before it enters a model prompt.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FetchGuard validates outbound fetch targets. Search engines return
// attacker-influenced URLs, so result pages are only fetched after the
// target is confirmed to be a public address.
//
// Blocked: private ranges (RFC 1918), loopback, link-local, unspecified
// addresses, cloud metadata endpoints, and a short list of hostnames that
// always resolve inward.
type FetchGuard struct {
	allowedSchemes map[string]struct{}
	blockedHosts   map[string]struct{}
}

// NewFetchGuard creates a FetchGuard with the default block list.
func NewFetchGuard() *FetchGuard {
	return &FetchGuard{
		allowedSchemes: map[string]struct{}{
			"http":  {},
			"https": {},
		},
		blockedHosts: map[string]struct{}{
			"localhost":                {},
			"metadata.google.internal": {},
			"metadata.gce.internal":    {},
			"metadata.internal":        {},
		},
	}
}

// Validate statically checks that a URL is safe to fetch. Hostnames that
// are not IP literals pass here; their resolved addresses are checked at
// dial time by SafeTransport.
func (g *FetchGuard) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if _, ok := g.allowedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty hostname")
	}
	return g.validateHost(host)
}

func (g *FetchGuard) validateHost(host string) error {
	if _, blocked := g.blockedHosts[strings.ToLower(host)]; blocked {
		return fmt.Errorf("blocked host %q", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return g.checkIP(ip)
	}
	return nil
}

// checkIP rejects addresses that never belong in an outbound fetch.
func (g *FetchGuard) checkIP(ip net.IP) error {
	// Normalize IPv6-mapped IPv4 (::ffff:127.0.0.1).
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private address %s", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address %s", ip)
	}
	return nil
}

// SafeTransport returns a transport that re-validates every resolved IP at
// dial time, closing the DNS rebinding gap that static validation leaves.
func (g *FetchGuard) SafeTransport() *http.Transport {
	return &http.Transport{
		DialContext:         g.safeDialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (g *FetchGuard) safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("fetch blocked: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup for %s: %w", host, err)
	}
	for _, ip := range ips {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("fetch blocked (%s resolved to %s): %w", host, ip, err)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses resolved for %s", host)
	}

	// Dial the checked IP, not the hostname, so the answer cannot change
	// between check and connect.
	target := ips[0].String()
	if port != "" {
		target = net.JoinHostPort(target, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, target)
}

// CheckRedirect is an http.Client redirect policy that validates every hop.
func (g *FetchGuard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	return g.Validate(req.URL.String())
}
