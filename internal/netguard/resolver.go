package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"
)

// ErrBlockedAddress marks a host that is, or resolves to, a private,
// loopback, link-local, or otherwise non-routable address.
var ErrBlockedAddress = errors.New("blocked address")

// ErrResolutionFailed marks a hostname that could not be resolved to any
// usable address.
var ErrResolutionFailed = errors.New("resolution failed")

// Resolver resolves a hostname to the full set of A and AAAA addresses and
// rejects the hostname when any single address is non-public. Returning all
// addresses up front lets the caller pin connections to them; a later DNS
// answer can never widen the set.
type Resolver struct {
	// Upstream, when set to a "host:port" DNS server address, queries that
	// server directly instead of the system resolver.
	Upstream string
	// QueryTimeout bounds each upstream DNS exchange. Zero means 5s.
	QueryTimeout time.Duration

	// LookupIP overrides the system-resolver path, for tests.
	LookupIP func(ctx context.Context, network, host string) ([]net.IP, error)
}

// Resolve validates host and returns every address it resolves to, in
// answer order. The returned set is valid for exactly one connection
// attempt cycle; callers must not reuse it across redirect hops.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrResolutionFailed)
	}
	// These never go near DNS.
	switch host {
	case "localhost", "0.0.0.0", "::":
		return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !IsPublicAddr(addr) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
		return []netip.Addr{addr.WithZone("")}, nil
	}

	var (
		addrs []netip.Addr
		err   error
	)
	if r.Upstream != "" {
		addrs, err = r.resolveUpstream(ctx, host)
	} else {
		addrs, err = r.resolveSystem(ctx, host)
	}
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no A or AAAA records for %s", ErrResolutionFailed, host)
	}
	for _, a := range addrs {
		if !IsPublicAddr(a) {
			log.Warn().Str("host", host).Str("addr", a.String()).
				Msg("hostname resolves to a non-public address")
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrBlockedAddress, host, a)
		}
	}
	return addrs, nil
}

// resolveSystem queries A and AAAA through the platform resolver. A missing
// record type is tolerated; only an empty union is an error.
func (r *Resolver) resolveSystem(ctx context.Context, host string) ([]netip.Addr, error) {
	lookup := r.LookupIP
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIP
	}
	var addrs []netip.Addr
	var lastErr error
	for _, network := range []string{"ip4", "ip6"} {
		ips, err := lookup(ctx, network, host)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				continue
			}
			lastErr = err
			continue
		}
		for _, ip := range ips {
			if a, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, a.Unmap())
			}
		}
	}
	if len(addrs) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolutionFailed, host, lastErr)
	}
	return dedupe(addrs), nil
}

// resolveUpstream queries the configured DNS server for A and AAAA records
// directly, bypassing the platform resolver entirely.
func (r *Resolver) resolveUpstream(ctx context.Context, host string) ([]netip.Addr, error) {
	timeout := r.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := &dns.Client{Timeout: timeout}
	var addrs []netip.Addr
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		in, _, err := client.ExchangeContext(ctx, msg, r.Upstream)
		if err != nil {
			lastErr = err
			continue
		}
		if in.Rcode == dns.RcodeNameError {
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("rcode %s", dns.RcodeToString[in.Rcode])
			continue
		}
		for _, rr := range in.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				if a, ok := netip.AddrFromSlice(rec.A); ok {
					addrs = append(addrs, a.Unmap())
				}
			case *dns.AAAA:
				if a, ok := netip.AddrFromSlice(rec.AAAA); ok {
					addrs = append(addrs, a.Unmap())
				}
			}
		}
	}
	if len(addrs) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: %s via %s: %v", ErrResolutionFailed, host, r.Upstream, lastErr)
	}
	return dedupe(addrs), nil
}

func dedupe(addrs []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]struct{}, len(addrs))
	j := 0
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		addrs[j] = a
		j++
	}
	return addrs[:j]
}
