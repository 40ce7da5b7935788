// Package security keeps storefront fetches on the public internet. A job
// payload can name its own feed URL, so every outbound dial and every
// redirect made by a provider client is checked against loopback, private,
// link-local and reserved ranges before a connection is opened.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"
)

// dnsTimeout bounds each lookup made by the guard.
const dnsTimeout = 500 * time.Millisecond

var (
	// ErrBlocked is returned when a destination resolves into a blocked range.
	ErrBlocked = errors.New("outbound request to blocked address")
	// ErrDNSTimeout is returned when resolution exceeds dnsTimeout.
	ErrDNSTimeout = errors.New("outbound DNS resolution timed out")
	// ErrDNSFailed is returned when a host does not resolve.
	ErrDNSFailed = errors.New("outbound DNS resolution failed")
	// ErrTooManyRedirects is returned past the redirect limit.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// blockedPrefixes are never dialed by a guarded client.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"), // instance metadata
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("::1/128"),
}

// Blocked reports whether addr falls in a blocked range. IPv4-mapped IPv6
// addresses are checked as IPv4.
func Blocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard resolves and vets destinations before dialing them.
type Guard struct {
	resolver Resolver
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewGuard creates a Guard. A nil resolver uses net.DefaultResolver.
func NewGuard(resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &Guard{
		resolver: resolver,
		dial:     dialer.DialContext,
	}
}

// resolve returns the vetted addresses for host. One blocked answer rejects
// the whole host.
func (g *Guard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if Blocked(addr) {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, addr)
		}
		return []netip.Addr{addr}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	answers, err := g.resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: host %q has no addresses", ErrDNSFailed, host)
	}

	addrs := make([]netip.Addr, 0, len(answers))
	for _, a := range answers {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok {
			return nil, fmt.Errorf("%w: host %q returned an invalid address", ErrDNSFailed, host)
		}
		if Blocked(addr) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlocked, addr.Unmap(), host)
		}
		addrs = append(addrs, addr.Unmap())
	}
	return addrs, nil
}

// DialContext resolves addr, rejects blocked destinations and dials the
// vetted addresses in order until one connects. It is installed as the
// transport's dialer.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid dial address %q: %w", addr, err)
	}

	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var dialErrs []error
	for _, a := range addrs {
		conn, err := g.dial(ctx, network, net.JoinHostPort(a.String(), port))
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		dialErrs = append(dialErrs, err)
	}
	return nil, fmt.Errorf("dial %s: %w", host, errors.Join(dialErrs...))
}

// CheckRedirect vets each redirect target and stops after maxRedirects hops.
func (g *Guard) CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect has no host", ErrBlocked)
		}
		_, err := g.resolve(req.Context(), host)
		return err
	}
}

// NewHTTPClient returns an http.Client whose dials and redirects go through
// g. Proxies are disabled.
func NewHTTPClient(g *Guard, timeout time.Duration, maxRedirects int) *http.Client {
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           g.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}
