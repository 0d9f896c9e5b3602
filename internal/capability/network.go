// Package capability implements the Capability Enforcer (C3): translating
// a CapabilitySet into backend-specific enforcement — wasm preopens, host
// command allow-lists, container flag narrowing, and network allowlisting.
// The enforcer is pure with respect to policy: it never widens a declared
// capability and never infers permissions from the skill's source.
package capability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type egressClientKey struct{}

// Egress is an http.RoundTripper that validates outbound requests against a
// domain allowlist derived from a skill instance's CapabilitySet before
// forwarding them to the base transport.
type Egress struct {
	base          http.RoundTripper
	networkAccess bool
	allowedHosts  map[string]bool
	wildcardHosts []string // suffix patterns, e.g. ".github.com"
	OnAttempt     func(ctx context.Context, domain string, allowed bool)
}

// NewEgress builds an Egress wrapper. When networkAccess is false every
// non-loopback request is denied regardless of domains. If base is nil,
// http.DefaultTransport is used.
func NewEgress(base http.RoundTripper, networkAccess bool, domains []string) *Egress {
	if base == nil {
		base = http.DefaultTransport
	}
	allowed := make(map[string]bool, len(domains))
	var wildcards []string
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if strings.HasPrefix(d, "*.") {
			wildcards = append(wildcards, d[1:])
		} else {
			allowed[d] = true
		}
	}
	return &Egress{base: base, networkAccess: networkAccess, allowedHosts: allowed, wildcardHosts: wildcards}
}

// RoundTrip implements http.RoundTripper.
func (e *Egress) RoundTrip(req *http.Request) (*http.Response, error) {
	host := strings.ToLower(req.URL.Hostname())
	ctx := req.Context()

	if isLocalhost(host) {
		if e.OnAttempt != nil {
			e.OnAttempt(ctx, host, true)
		}
		return e.base.RoundTrip(req)
	}

	allowed := e.networkAccess && e.isAllowed(host)
	if e.OnAttempt != nil {
		e.OnAttempt(ctx, host, allowed)
	}
	if !allowed {
		return nil, fmt.Errorf("egress blocked: domain %q denied (network_access=%v)", host, e.networkAccess)
	}
	return e.base.RoundTrip(req)
}

func (e *Egress) isAllowed(host string) bool {
	if len(e.allowedHosts) == 0 && len(e.wildcardHosts) == 0 {
		// network_access=true with no explicit allowlist permits any host.
		return true
	}
	if e.allowedHosts[host] {
		return true
	}
	for _, suffix := range e.wildcardHosts {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// WithEgressClient stores an egress-enforced HTTP client in the context.
func WithEgressClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, egressClientKey{}, client)
}

// EgressClientFromContext retrieves the egress-enforced HTTP client from
// the context, or http.DefaultClient if none is set.
func EgressClientFromContext(ctx context.Context) *http.Client {
	if c, ok := ctx.Value(egressClientKey{}).(*http.Client); ok && c != nil {
		return c
	}
	return http.DefaultClient
}
