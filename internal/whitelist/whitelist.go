package whitelist

import (
	"net/netip"
	"regexp"

	"github.com/mikey/greylist-filter/internal/core"
)

// Entry is a single whitelist rule: either a NetworkEntry or a HostEntry
type Entry interface {
	String() string
	isEntry()
}

// NetworkEntry whitelists an IPv4 or IPv6 network
type NetworkEntry struct {
	Prefix netip.Prefix
}

func (NetworkEntry) isEntry() {}

// String returns the network in CIDR notation
func (n NetworkEntry) String() string {
	return n.Prefix.String()
}

// Version returns 4 or 6
func (n NetworkEntry) Version() int {
	if n.Prefix.Addr().Is4() {
		return 4
	}
	return 6
}

// Contains reports whether addr lies inside the network. Addresses of the other IP
// version never match.
func (n NetworkEntry) Contains(addr netip.Addr) bool {
	if addr.Is4() != n.Prefix.Addr().Is4() {
		return false
	}
	return n.Prefix.Contains(addr)
}

// HostEntry whitelists reverse DNS hostnames matching a case-insensitive pattern
type HostEntry struct {
	Pattern *regexp.Regexp
}

func (HostEntry) isEntry() {}

// String returns the compiled pattern, which is the entry named in decision reasons
func (h HostEntry) String() string {
	return h.Pattern.String()
}

// Matches reports whether hostname matches the pattern
func (h HostEntry) Matches(hostname string) bool {
	return h.Pattern.MatchString(hostname)
}

// Set is an immutable, ordered collection of whitelist entries
type Set struct {
	networks []NetworkEntry
	hosts    []HostEntry
}

// NewSet creates a set from entries, keeping their order
func NewSet(entries ...Entry) *Set {
	s := &Set{}
	for _, e := range entries {
		s.add(e)
	}
	return s
}

func (s *Set) add(e Entry) {
	switch e := e.(type) {
	case NetworkEntry:
		s.networks = append(s.networks, e)
	case HostEntry:
		s.hosts = append(s.hosts, e)
	}
}

// Networks returns the network entries in evaluation order
func (s *Set) Networks() []NetworkEntry {
	return append([]NetworkEntry(nil), s.networks...)
}

// Hosts returns the hostname entries in evaluation order
func (s *Set) Hosts() []HostEntry {
	return append([]HostEntry(nil), s.hosts...)
}

// Len returns the total number of entries
func (s *Set) Len() int {
	return len(s.networks) + len(s.hosts)
}

// MatchHost returns the first hostname entry matching hostname
func (s *Set) MatchHost(hostname string) (core.WhitelistEntry, bool) {
	for _, h := range s.hosts {
		if h.Matches(hostname) {
			return h, true
		}
	}
	return nil, false
}

// MatchIP returns the first network entry containing addr
func (s *Set) MatchIP(addr netip.Addr) (core.WhitelistEntry, bool) {
	for _, n := range s.networks {
		if n.Contains(addr) {
			return n, true
		}
	}
	return nil, false
}
