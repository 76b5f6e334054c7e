//go:build linux

package firewall

import (
	"fmt"
	"log/slog"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NftablesController implements Controller using the Linux nftables
// subsystem via the google/nftables netlink library. It manages a single
// IPv4 filter table and an output-hook base chain whose default policy is
// drop, so the deny-all default is in place before any accept rule.
type NftablesController struct {
	table  string
	iface  string
	logger *slog.Logger
}

// NewNftablesController returns a new NftablesController managing chains in
// the named table. iface, when non-empty, is validated for existence before
// rules are applied.
func NewNftablesController(table, iface string, logger *slog.Logger) *NftablesController {
	return &NftablesController{table: table, iface: iface, logger: logger}
}

// EnsureChain creates the named chain if it does not already exist. The
// chain is a base chain with an output hook and a drop policy: traffic not
// matched by any accept rule is denied.
func (c *NftablesController) EnsureChain(chain string) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: ensure chain: %w", err)
	}

	table := c.ensureTable(conn)
	policy := nftables.ChainPolicyDrop
	conn.AddChain(&nftables.Chain{
		Name:     chain,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("firewall: nftables: ensure chain %q: %w", chain, err)
	}

	c.logger.Debug("nftables chain ensured",
		"component", "firewall",
		"chain", chain,
		"policy", "drop",
	)
	return nil
}

// ApplyRules replaces all rules in the named chain. The egress interface is
// checked for existence first so a misconfigured sandbox fails loudly
// instead of silently filtering the wrong interface. There is no rollback:
// a mid-sequence failure leaves the chain partially populated and is
// surfaced to the caller as fatal.
func (c *NftablesController) ApplyRules(chain string, rules []Rule) error {
	if c.iface != "" {
		if _, err := netlink.LinkByName(c.iface); err != nil {
			return fmt.Errorf("firewall: nftables: egress interface %q: %w", c.iface, err)
		}
	}

	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: apply rules: %w", err)
	}

	table := c.ensureTable(conn)
	policy := nftables.ChainPolicyDrop
	nftChain := conn.AddChain(&nftables.Chain{
		Name:     chain,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})

	// Flush existing rules in the chain before adding new ones.
	conn.FlushChain(nftChain)

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("firewall: nftables: apply rules: %w", err)
		}
		for _, exprs := range buildRuleExprs(rule) {
			conn.AddRule(&nftables.Rule{
				Table: table,
				Chain: nftChain,
				Exprs: exprs,
			})
		}
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("firewall: nftables: apply rules to chain %q: %w", chain, err)
	}

	c.logger.Debug("nftables rules applied",
		"component", "firewall",
		"chain", chain,
		"count", len(rules),
	)
	return nil
}

// FlushChain removes all rules from the named chain.
func (c *NftablesController) FlushChain(chain string) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: flush chain: %w", err)
	}

	table := c.ensureTable(conn)
	conn.FlushChain(&nftables.Chain{
		Name:  chain,
		Table: table,
	})

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("firewall: nftables: flush chain %q: %w", chain, err)
	}

	c.logger.Debug("nftables chain flushed",
		"component", "firewall",
		"chain", chain,
	)
	return nil
}

// DeleteChain deletes the named chain. It is idempotent: deleting a
// non-existent chain returns nil.
func (c *NftablesController) DeleteChain(chain string) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("firewall: nftables: delete chain: %w", err)
	}

	chains, err := conn.ListChainsOfTableFamily(nftables.TableFamilyIPv4)
	if err != nil {
		return fmt.Errorf("firewall: nftables: delete chain: list chains: %w", err)
	}

	for _, ch := range chains {
		if ch.Table.Name == c.table && ch.Name == chain {
			conn.DelChain(ch)
			if err := conn.Flush(); err != nil {
				return fmt.Errorf("firewall: nftables: delete chain %q: %w", chain, err)
			}
			c.logger.Debug("nftables chain deleted",
				"component", "firewall",
				"chain", chain,
			)
			return nil
		}
	}

	// Chain does not exist — idempotent success.
	c.logger.Debug("nftables chain not found, nothing to delete",
		"component", "firewall",
		"chain", chain,
		"table", c.table,
	)
	return nil
}

// ensureTable adds the IPv4 filter table to the connection batch.
// AddTable is idempotent in nftables — adding an existing table is a no-op.
func (c *NftablesController) ensureTable(conn *nftables.Conn) *nftables.Table {
	return conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   c.table,
	})
}

// buildRuleExprs converts a Rule into one expression list per resolved
// destination address (a Rule with no addresses produces a single
// any-destination list).
func buildRuleExprs(rule Rule) [][]expr.Any {
	switch rule.Match {
	case MatchLoopback:
		return [][]expr.Any{loopbackExprs(rule)}
	case MatchEstablished:
		return [][]expr.Any{establishedExprs(rule)}
	}

	base := func() []expr.Any {
		var exprs []expr.Any
		if rule.Protocol != "" {
			exprs = append(exprs,
				&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
				&expr.Cmp{
					Op:       expr.CmpOpEq,
					Register: 1,
					Data:     []byte{protocolNumber(rule.Protocol)},
				},
			)
		}
		if rule.Port > 0 {
			exprs = append(exprs,
				&expr.Payload{
					DestRegister: 1,
					Base:         expr.PayloadBaseTransportHeader,
					Offset:       2, // TCP/UDP destination port offset
					Len:          2,
				},
				&expr.Cmp{
					Op:       expr.CmpOpEq,
					Register: 1,
					Data:     portBytes(uint16(rule.Port)),
				},
			)
		}
		return exprs
	}

	if len(rule.IPs) == 0 {
		return [][]expr.Any{finishExprs(base(), rule.Action)}
	}

	var lists [][]expr.Any
	for _, ip := range rule.IPs {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		exprs := append(base(),
			&expr.Payload{
				DestRegister: 1,
				Base:         expr.PayloadBaseNetworkHeader,
				Offset:       16, // IPv4 dst offset
				Len:          4,
			},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     v4,
			},
		)
		lists = append(lists, finishExprs(exprs, rule.Action))
	}
	return lists
}

// loopbackExprs matches traffic leaving on the loopback interface.
func loopbackExprs(rule Rule) []expr.Any {
	return finishExprs([]expr.Any{
		&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
		&expr.Cmp{
			Op:       expr.CmpOpEq,
			Register: 1,
			Data:     ifaceNameBytes("lo"),
		},
	}, rule.Action)
}

// establishedExprs matches packets in established or related conntrack state.
func establishedExprs(rule Rule) []expr.Any {
	return finishExprs([]expr.Any{
		&expr.Ct{Key: expr.CtKeySTATE, Register: 1},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           binaryutil.NativeEndian.PutUint32(expr.CtStateBitESTABLISHED | expr.CtStateBitRELATED),
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{
			Op:       expr.CmpOpNeq,
			Register: 1,
			Data:     []byte{0, 0, 0, 0},
		},
	}, rule.Action)
}

// finishExprs appends the observability counter and the verdict.
func finishExprs(exprs []expr.Any, action string) []expr.Any {
	exprs = append(exprs, &expr.Counter{})
	verdict := expr.VerdictDrop
	if action == "accept" {
		verdict = expr.VerdictAccept
	}
	return append(exprs, &expr.Verdict{Kind: verdict})
}

// protocolNumber maps a protocol string to its IP protocol number.
func protocolNumber(proto string) byte {
	if proto == "udp" {
		return unix.IPPROTO_UDP
	}
	return unix.IPPROTO_TCP
}

// portBytes encodes a port number as 2 big-endian bytes for nftables matching.
func portBytes(port uint16) []byte {
	return []byte{byte(port >> 8), byte(port)}
}

// ifaceNameBytes returns the interface name as a null-terminated byte slice
// for nftables expression matching.
func ifaceNameBytes(name string) []byte {
	buf := make([]byte, len(name)+1)
	copy(buf, name)
	return buf
}
