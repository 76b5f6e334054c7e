package firewall

import (
	"fmt"
	"net"
	"strings"
)

// Match selects the kind of traffic a Rule applies to.
type Match string

const (
	// MatchLoopback matches traffic leaving on the loopback interface.
	MatchLoopback Match = "loopback"

	// MatchEstablished matches packets belonging to established or related
	// connections.
	MatchEstablished Match = "established"

	// MatchDest matches by protocol, destination port, and optionally a set
	// of destination addresses.
	MatchDest Match = "dest"
)

// Rule is one ordered entry in the outbound whitelist. Order matters only in
// that the established-connection accept precedes destination rules (an
// efficiency concern, not correctness); the default deny is the chain policy
// and is installed before any rule.
type Rule struct {
	Match    Match
	Host     string   // hostname the rule was derived from, informational
	IPs      []net.IP // resolved destinations; empty means any destination
	Protocol string   // "tcp" or "udp" (MatchDest only)
	Port     int      // destination port, 0 = any (MatchDest only)
	Action   string   // "accept" or "drop"
}

// Validate checks the rule for semantic correctness and returns an error
// if any field contains an invalid value.
func (r *Rule) Validate() error {
	if r.Action != "accept" && r.Action != "drop" {
		return fmt.Errorf("firewall: rule: invalid action %q", r.Action)
	}
	switch r.Match {
	case MatchLoopback, MatchEstablished:
		if r.Port != 0 || r.Protocol != "" || len(r.IPs) != 0 {
			return fmt.Errorf("firewall: rule: %s match must not carry protocol, port, or addresses", r.Match)
		}
	case MatchDest:
		if r.Protocol != "tcp" && r.Protocol != "udp" {
			return fmt.Errorf("firewall: rule: invalid protocol %q", r.Protocol)
		}
		if r.Port < 0 || r.Port > 65535 {
			return fmt.Errorf("firewall: rule: invalid port %d", r.Port)
		}
		// The chain matches the IPv4 destination header; an IPv6 address
		// would contribute no expression and silently leave its traffic
		// dropped, so reject it up front.
		for _, ip := range r.IPs {
			if ip.To4() == nil {
				return fmt.Errorf("firewall: rule: address %s is not IPv4", ip)
			}
		}
	default:
		return fmt.Errorf("firewall: rule: invalid match %q", r.Match)
	}
	return nil
}

// String renders the rule in a human-readable form for status output.
func (r *Rule) String() string {
	switch r.Match {
	case MatchLoopback:
		return "oif lo " + r.Action
	case MatchEstablished:
		return "ct state established,related " + r.Action
	}
	dst := "any"
	if len(r.IPs) > 0 {
		addrs := make([]string, len(r.IPs))
		for i, ip := range r.IPs {
			addrs[i] = ip.String()
		}
		dst = strings.Join(addrs, ",")
	}
	if r.Host != "" {
		dst = fmt.Sprintf("%s (%s)", r.Host, dst)
	}
	return fmt.Sprintf("%s dport %d -> %s %s", r.Protocol, r.Port, dst, r.Action)
}

// Controller abstracts OS-level packet filter operations for testability.
// Implementations install rules in order; there is no rollback — a failure
// partway leaves the filter in a partially-applied state and the caller
// treats it as fatal.
type Controller interface {
	// EnsureChain creates the egress chain with a deny-all default policy
	// if it does not already exist.
	EnsureChain(chain string) error
	// ApplyRules replaces all rules in the named chain.
	ApplyRules(chain string, rules []Rule) error
	// FlushChain removes all rules from the named chain.
	FlushChain(chain string) error
	// DeleteChain deletes the named chain.
	// Implementations must be idempotent: deleting a non-existent chain must return nil.
	DeleteChain(chain string) error
}
