// Package netguard classifies IP addresses and resolves hostnames for the
// restricted outbound HTTP client. A hostname is only usable when every
// address it advertises is publicly routable; anything else is rejected
// before a single connection is attempted.
package netguard

import (
	"net/netip"
)

// blockedV4 lists IPv4 ranges that must never be dialed. Sourced from the
// IANA IPv4 Special-Purpose Address Registry.
var blockedV4 = mustPrefixes(
	"0.0.0.0/8",       // "this network"
	"10.0.0.0/8",      // private
	"100.64.0.0/10",   // carrier-grade NAT
	"127.0.0.0/8",     // loopback
	"169.254.0.0/16",  // link-local
	"172.16.0.0/12",   // private
	"192.0.0.0/24",    // IETF protocol assignments
	"192.0.2.0/24",    // documentation (TEST-NET-1)
	"192.168.0.0/16",  // private
	"198.18.0.0/15",   // benchmarking
	"198.51.100.0/24", // documentation (TEST-NET-2)
	"203.0.113.0/24",  // documentation (TEST-NET-3)
	"224.0.0.0/4",     // multicast
	"240.0.0.0/4",     // reserved, includes limited broadcast
)

// blockedV6 lists IPv6 ranges that must never be dialed. IPv4-mapped
// addresses are unmapped and checked against blockedV4 instead.
var blockedV6 = mustPrefixes(
	"::/128",        // unspecified
	"::1/128",       // loopback
	"64:ff9b::/96",  // NAT64 well-known prefix
	"64:ff9b:1::/48", // NAT64 local-use
	"100::/64",      // discard-only
	"2001::/23",     // IETF protocol assignments
	"2001:db8::/32", // documentation
	"3fff::/20",     // documentation
	"5f00::/16",     // SRv6 SIDs
	"fc00::/7",      // unique local
	"fe80::/10",     // link-local
	"ff00::/8",      // multicast
)

func mustPrefixes(specs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(specs))
	for _, s := range specs {
		out = append(out, netip.MustParsePrefix(s))
	}
	return out
}

// IsPublicAddr reports whether addr is a publicly routable unicast address.
// IPv4-mapped IPv6 addresses are judged by their embedded IPv4 form.
func IsPublicAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	// Prefix.Contains never matches zone-scoped addresses, so strip the
	// zone before checking; a link-local with a zone is still link-local.
	addr = addr.WithZone("").Unmap()
	table := blockedV6
	if addr.Is4() {
		table = blockedV4
	}
	for _, p := range table {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// IsPublicAddrString parses s as an IP literal and applies IsPublicAddr.
// Anything that does not parse is treated as non-public.
func IsPublicAddrString(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return IsPublicAddr(addr)
}
