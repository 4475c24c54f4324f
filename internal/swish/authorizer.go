package swish

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/frahmantamala/swish-payments/internal"
)

// CallerAuthorizer decides whether a callback comes from the gateway. The
// trusted value is a single address or a CIDR prefix; callers match by exact
// address or containment. IPv4-mapped IPv6 callers are unmapped first.
type CallerAuthorizer struct {
	prefix  netip.Prefix
	trusted bool
}

// NewCallerAuthorizer parses trusted. An empty value yields an authorizer
// that rejects every caller.
func NewCallerAuthorizer(trusted string) (*CallerAuthorizer, error) {
	trusted = strings.TrimSpace(trusted)
	if trusted == "" {
		return &CallerAuthorizer{}, nil
	}

	if strings.Contains(trusted, "/") {
		prefix, err := netip.ParsePrefix(trusted)
		if err != nil {
			return nil, internal.ErrInvalidServerIP.WithCause(err)
		}
		if prefix.Addr().Is4In6() {
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
			if !prefix.IsValid() {
				return nil, internal.ErrInvalidServerIP.WithCause(fmt.Errorf("prefix %s is wider than the mapped range", trusted))
			}
		}
		return &CallerAuthorizer{prefix: prefix.Masked(), trusted: true}, nil
	}

	addr, err := netip.ParseAddr(trusted)
	if err != nil {
		return nil, internal.ErrInvalidServerIP.WithCause(err)
	}
	addr = addr.Unmap().WithZone("")
	return &CallerAuthorizer{prefix: netip.PrefixFrom(addr, addr.BitLen()), trusted: true}, nil
}

// Allow reports whether remoteAddr (host or host:port) is trusted.
func (a *CallerAuthorizer) Allow(remoteAddr string) bool {
	if a == nil || !a.trusted {
		return false
	}
	addr, ok := parseRemoteAddr(remoteAddr)
	if !ok {
		return false
	}
	return a.prefix.Contains(addr)
}

func (a *CallerAuthorizer) String() string {
	if a == nil || !a.trusted {
		return ""
	}
	if a.prefix.IsSingleIP() {
		return a.prefix.Addr().String()
	}
	return a.prefix.String()
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}
