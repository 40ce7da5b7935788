package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	ips map[string][]net.IPAddr
}

func (m *mockResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := m.ips[host]
	if !ok {
		return nil, fmt.Errorf("no such host: %s", host)
	}
	return ips, nil
}

func newMockResolver(mappings map[string][]string) *mockResolver {
	ips := make(map[string][]net.IPAddr, len(mappings))
	for host, list := range mappings {
		for _, s := range list {
			ips[host] = append(ips[host], net.IPAddr{IP: net.ParseIP(s)})
		}
	}
	return &mockResolver{ips: ips}
}

type slowResolver struct{}

func (slowResolver) LookupIPAddr(ctx context.Context, _ string) ([]net.IPAddr, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBlocked(t *testing.T) {
	tests := []struct {
		ip      string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:127.0.0.1", true},
		{"93.184.216.34", false},
		{"2606:4700::1111", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.blocked, Blocked(netip.MustParseAddr(tt.ip)))
		})
	}
}

func TestGuard_DialContext_BlocksResolvedPrivate(t *testing.T) {
	g := NewGuard(newMockResolver(map[string][]string{
		"feed.example.com": {"10.0.0.5"},
	}))

	_, err := g.DialContext(context.Background(), "tcp", "feed.example.com:443")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGuard_DialContext_BlocksMixedAnswers(t *testing.T) {
	g := NewGuard(newMockResolver(map[string][]string{
		"feed.example.com": {"93.184.216.34", "169.254.169.254"},
	}))

	_, err := g.DialContext(context.Background(), "tcp", "feed.example.com:443")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGuard_DialContext_BlocksIPLiteral(t *testing.T) {
	g := NewGuard(newMockResolver(nil))

	for _, addr := range []string{"127.0.0.1:80", "[::1]:80", "169.254.169.254:80"} {
		_, err := g.DialContext(context.Background(), "tcp", addr)
		assert.ErrorIs(t, err, ErrBlocked, addr)
	}
}

func TestGuard_DialContext_DNSFailures(t *testing.T) {
	_, err := NewGuard(newMockResolver(nil)).DialContext(context.Background(), "tcp", "missing.example.com:443")
	assert.ErrorIs(t, err, ErrDNSFailed)

	_, err = NewGuard(newMockResolver(map[string][]string{"empty.example.com": nil})).
		DialContext(context.Background(), "tcp", "empty.example.com:443")
	assert.ErrorIs(t, err, ErrDNSFailed)

	start := time.Now()
	_, err = NewGuard(slowResolver{}).DialContext(context.Background(), "tcp", "slow.example.com:443")
	assert.ErrorIs(t, err, ErrDNSTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGuard_DialContext_FallsBackToNextAddress(t *testing.T) {
	g := NewGuard(newMockResolver(map[string][]string{
		"feed.example.com": {"2606:4700::1111", "93.184.216.34"},
	}))

	var tried []string
	g.dial = func(_ context.Context, _, addr string) (net.Conn, error) {
		tried = append(tried, addr)
		if strings.HasPrefix(addr, "[") {
			return nil, errors.New("network is unreachable")
		}
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}

	conn, err := g.DialContext(context.Background(), "tcp", "feed.example.com:443")
	require.NoError(t, err)
	conn.Close()
	assert.Equal(t, []string{"[2606:4700::1111]:443", "93.184.216.34:443"}, tried)
}

func TestGuard_DialContext_AllAddressesFail(t *testing.T) {
	g := NewGuard(newMockResolver(map[string][]string{
		"feed.example.com": {"93.184.216.34", "93.184.216.35"},
	}))

	refused := errors.New("connection refused")
	calls := 0
	g.dial = func(context.Context, string, string) (net.Conn, error) {
		calls++
		return nil, refused
	}

	_, err := g.DialContext(context.Background(), "tcp", "feed.example.com:443")
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 2, calls)
}

func TestGuard_DialContext_InvalidAddress(t *testing.T) {
	_, err := NewGuard(nil).DialContext(context.Background(), "tcp", "no-port")
	assert.Error(t, err)
}

func TestGuard_CheckRedirect(t *testing.T) {
	g := NewGuard(newMockResolver(map[string][]string{
		"cdn.example.com":      {"93.184.216.34"},
		"internal.example.com": {"192.168.0.10"},
	}))
	check := g.CheckRedirect(2)

	redirect := func(raw string) *http.Request {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return (&http.Request{URL: u}).WithContext(context.Background())
	}

	assert.NoError(t, check(redirect("https://cdn.example.com/feed"), nil))
	assert.ErrorIs(t, check(redirect("https://internal.example.com/feed"), nil), ErrBlocked)
	assert.ErrorIs(t, check(redirect("http://169.254.169.254/latest/meta-data"), nil), ErrBlocked)

	via := []*http.Request{redirect("https://cdn.example.com/a"), redirect("https://cdn.example.com/b")}
	assert.ErrorIs(t, check(redirect("https://cdn.example.com/c"), via), ErrTooManyRedirects)
}

func TestNewHTTPClient_RefusesLoopbackServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(NewGuard(nil), 2*time.Second, 3)
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked) || strings.Contains(err.Error(), ErrBlocked.Error()),
		"expected blocked error, got %v", err)
}
